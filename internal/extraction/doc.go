// Package extraction turns raw HTML into typed facility fields using per-site rule sets.
//
// This package is organized into small cooperating pieces:
//   - rule: classifies a rule string as selector, tree query or pattern
//   - infer: converts matched text into bool, int, float, list or string
//   - document: parses HTML once per call (charset aware)
//   - field: applies a single rule to a document
//   - engine: walks a site's priority and extra rules and aggregates status
//
// Built on specialized libraries:
//   - goquery + cascadia: CSS selectors
//   - htmlquery + xpath: XPath tree queries (optional capability)
//   - regexp2: backtracking patterns with case-insensitive search
//   - chardet: character encoding detection
//
// Field-level failures never abort a call. Only a document that cannot be
// parsed at all is returned as an error.
//
// Example Usage:
//
//	engine := extraction.NewEngine(logger)
//	result, err := engine.ExtractFields(html, extraction.SiteRules{
//		SiteType: "fablab",
//		Priority: map[string]string{"name": "h1.name"},
//	})
package extraction
