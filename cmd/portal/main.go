// Package main is the entry point for the portal-creditos service: the public
// credit-offer intake portal and the admin review dashboard.
package main

func main() {
	Execute()
}
