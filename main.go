package main

import (
	"log"

	"smtpvoid/cmd"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := cmd.Execute(Version); err != nil {
		log.Fatalf("%v", err)
	}
}
