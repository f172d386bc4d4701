package cmd

import (
	"fmt"
)

const banner = `
  _  __               _
 | |/ /___ _   _ ___ | |_ ___ _ __
 | ' // _ \ | | / __|| __/ _ \ '_ \
 | . \  __/ |_| \__ \| ||  __/ |_) |
 |_|\_\___|\__, |___/ \__\___| .__/
           |___/             |_|
`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  MFA Hardening Service - Version %s\x1b[0m\n\n", Version)
}
