package main

import "restaurant-storefront/cmd"

func main() {
	cmd.Execute()
}
