package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bavena95/portal-creditos/internal/store"
)

var offersFile string

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Manage credit offers",
}

var offersImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import offers from a YAML file",
	Long: `Import inserts or updates offers keyed by case number. The file looks like:

  offers:
    - caseNumber: "0001234-56.2020.5.02.0001"
      name: "Maria Souza"
      offerAmount: "15000.50"
      status: available   # optional, defaults to available`,
	RunE: runOffersImport,
}

func init() {
	offersImportCmd.Flags().StringVar(&offersFile, "file", "", "path to the offers YAML file (required)")
	_ = offersImportCmd.MarkFlagRequired("file")
	offersCmd.AddCommand(offersImportCmd)
}

type offerFile struct {
	Offers []offerEntry `yaml:"offers"`
}

type offerEntry struct {
	CaseNumber  string `yaml:"caseNumber"`
	Name        string `yaml:"name"`
	OfferAmount string `yaml:"offerAmount"`
	Status      string `yaml:"status"`
}

func runOffersImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(offersFile)
	if err != nil {
		return fmt.Errorf("opening offers file: %w", err)
	}
	defer f.Close()

	offers, err := parseOffers(f)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.Timeout)
	defer cancel()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, o := range offers {
		saved, err := st.UpsertOffer(ctx, o)
		if err != nil {
			return fmt.Errorf("importing offer %s: %w", o.CaseNumber, err)
		}
		slog.Debug("offer imported", "offer_id", saved.ID, "case_number", saved.CaseNumber, "status", saved.Status)
	}
	slog.Info("offers imported", "count", len(offers))
	return nil
}

// parseOffers decodes and validates an offers file. Every entry needs a case
// number, a name and a non-negative decimal amount.
func parseOffers(r io.Reader) ([]store.Offer, error) {
	var file offerFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding offers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Offers))
	out := make([]store.Offer, 0, len(file.Offers))
	for i, e := range file.Offers {
		o := store.Offer{
			CaseNumber:  strings.TrimSpace(e.CaseNumber),
			Name:        strings.TrimSpace(e.Name),
			OfferAmount: strings.TrimSpace(e.OfferAmount),
			Status:      strings.TrimSpace(e.Status),
		}
		if o.CaseNumber == "" || o.Name == "" {
			return nil, fmt.Errorf("offer %d: caseNumber and name are required", i+1)
		}
		if seen[o.CaseNumber] {
			return nil, fmt.Errorf("offer %d: duplicate caseNumber %s", i+1, o.CaseNumber)
		}
		seen[o.CaseNumber] = true
		amount, err := strconv.ParseFloat(o.OfferAmount, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("offer %d: invalid offerAmount %q", i+1, e.OfferAmount)
		}
		if o.Status == "" {
			o.Status = store.OfferAvailable
		}
		out = append(out, o)
	}
	return out, nil
}
