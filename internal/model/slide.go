package model

import "strings"

// Slide is the content produced by a channel plugin. Fields holding an
// asset reference are keyed with one of AssetFieldPrefixes.
type Slide struct {
	TemplateID string                    `json:"template"`
	Duration   int                       `json:"duration"`
	Fields     map[string]map[string]any `json:"content"`
}

var AssetFieldPrefixes = []string{"image-", "logo-", "background-"}

func IsAssetField(name string) bool {
	for _, p := range AssetFieldPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
