// The main package for the sentiment crawler executable.
package main

import (
	"github.com/JakeFAU/stock-sentiment-crawler/cmd"
)

func main() {
	cmd.Execute()
}
