package main

import (
	"log"

	stewardd "cronosquity/services/stewardd"
)

func main() {
	if err := stewardd.Main(); err != nil {
		log.Fatalf("stewardd: %v", err)
	}
}
