// Command docgen regenerates docs/api.adoc from the @Route annotations on
// the API handlers, so the rendered API reference cannot drift from the
// code. Run from the repository root.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

func main() {
	apiDir := "internal/api"
	files, err := os.ReadDir(apiDir)
	if err != nil {
		panic(err)
	}

	var endpoints []Endpoint

	// Regex to match comments
	reTitle := regexp.MustCompile(`// @Title: (.*)`)
	reRoute := regexp.MustCompile(`// @Route: (.*)`)
	reDesc := regexp.MustCompile(`// @Description: (.*)`)
	reResp := regexp.MustCompile(`// @Response: (.*)`)

	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".go") || strings.HasSuffix(file.Name(), "_test.go") {
			continue
		}

		f, err := os.Open(filepath.Join(apiDir, file.Name()))
		if err != nil {
			continue
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		var current Endpoint

		for scanner.Scan() {
			line := scanner.Text()

			if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
				current.Title = strings.TrimSpace(match[1])
			}
			if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
				current.Route = strings.TrimSpace(match[1])
			}
			if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
				current.Description = strings.TrimSpace(match[1])
			}
			if match := reResp.FindStringSubmatch(line); len(match) > 1 {
				current.Response = strings.TrimSpace(match[1])
				// End of block, append and reset
				if current.Title != "" && current.Route != "" {
					endpoints = append(endpoints, current)
					current = Endpoint{}
				}
			}
		}
	}

	if err := writeAdoc("docs/api.adoc", endpoints); err != nil {
		panic(err)
	}
	fmt.Printf("✓ Wrote docs/api.adoc (%d endpoints)\n", len(endpoints))
}

func writeAdoc(path string, endpoints []Endpoint) error {
	var b strings.Builder

	b.WriteString("= vouchd API Reference\n")
	b.WriteString(":toc:\n\n")
	b.WriteString("Generated from handler annotations by `go run ./cmd/docgen`. Do not edit by hand.\n\n")

	for _, ep := range endpoints {
		b.WriteString(fmt.Sprintf("== %s\n\n", ep.Title))
		b.WriteString(fmt.Sprintf("`%s`\n\n", ep.Route))
		if ep.Description != "" {
			b.WriteString(ep.Description + ".\n\n")
		}
		if ep.Response != "" {
			b.WriteString(fmt.Sprintf("Response:: %s\n\n", ep.Response))
		}
	}

	return os.WriteFile(path, []byte(b.String()), 0644)
}
