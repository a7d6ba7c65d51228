package main

import (
	"encoding/json"
	"fmt"
	"os"
)

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to render JSON: %v\n", err)
		return
	}
	fmt.Println(string(b))
}
