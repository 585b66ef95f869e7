package policy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	catalogPathRequiredMessageConstant = "catalog path must be provided"
	catalogLoadErrorTemplateConstant   = "failed to load policy catalog: %w"
	catalogParseErrorTemplateConstant  = "failed to parse policy catalog: %w"
	catalogEmptyMessageConstant        = "policy catalog declares no rules"
)

// LoadCatalog reads a policy catalog from a YAML file and validates it.
// The file may declare the catalog at the top level or under a `policy:` key.
func LoadCatalog(filePath string) (Catalog, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Catalog{}, errors.New(catalogPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Catalog{}, fmt.Errorf(catalogLoadErrorTemplateConstant, readError)
	}

	var catalog Catalog
	if unmarshalError := yaml.Unmarshal(contentBytes, &catalog); unmarshalError != nil {
		return Catalog{}, fmt.Errorf(catalogParseErrorTemplateConstant, unmarshalError)
	}

	if catalogIsEmpty(catalog) {
		var wrapper struct {
			Policy Catalog `yaml:"policy"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError == nil && !catalogIsEmpty(wrapper.Policy) {
			catalog = wrapper.Policy
		}
	}

	if catalogIsEmpty(catalog) {
		return Catalog{}, errors.New(catalogEmptyMessageConstant)
	}

	if validationError := catalog.Validate(); validationError != nil {
		return Catalog{}, validationError
	}

	return catalog, nil
}

func catalogIsEmpty(catalog Catalog) bool {
	return len(catalog.BannedPathPrefixes) == 0 &&
		len(catalog.RiskyPackages) == 0 &&
		len(catalog.ExpectedBuildAllowlist) == 0
}
