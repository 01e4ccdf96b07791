// Command healthtrack は健康記録サービスのローカルUIを起動する。
//
//	healthtrack [serve|migrate|status|logout|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/healthtrack/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "healthtrack: %v\n", err)
		os.Exit(1)
	}
}
