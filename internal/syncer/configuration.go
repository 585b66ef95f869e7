package syncer

import "strings"

const (
	configurationRemoteKeyConstant  = "remote"
	configurationBranchKeyConstant  = "branch"
	configurationURLKeyConstant     = "url"
	configurationPreviewKeyConstant = "preview_count"

	defaultUpstreamRemoteNameConstant = "upstream"
	defaultUpstreamBranchNameConstant = "main"
	defaultUpstreamURLConstant        = "https://github.com/gateway-project/gateway.git"
	defaultPreviewCountConstant       = 20

	configurationKeySeparatorConstant = "."
)

// Configuration captures the configurable parameters of the sync command.
type Configuration struct {
	RemoteName   string `mapstructure:"remote"`
	BranchName   string `mapstructure:"branch"`
	RemoteURL    string `mapstructure:"url"`
	PreviewCount int    `mapstructure:"preview_count"`
}

// DefaultConfiguration provides the baseline upstream settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		RemoteName:   defaultUpstreamRemoteNameConstant,
		BranchName:   defaultUpstreamBranchNameConstant,
		RemoteURL:    defaultUpstreamURLConstant,
		PreviewCount: defaultPreviewCountConstant,
	}
}

// DefaultConfigurationValues produces Viper defaults for the sync command.
func DefaultConfigurationValues(rootKey string) map[string]any {
	defaults := DefaultConfiguration()
	return map[string]any{
		rootKey + configurationKeySeparatorConstant + configurationRemoteKeyConstant:  defaults.RemoteName,
		rootKey + configurationKeySeparatorConstant + configurationBranchKeyConstant:  defaults.BranchName,
		rootKey + configurationKeySeparatorConstant + configurationURLKeyConstant:     defaults.RemoteURL,
		rootKey + configurationKeySeparatorConstant + configurationPreviewKeyConstant: defaults.PreviewCount,
	}
}

// sanitize trims textual configuration values and applies defaults for
// missing entries.
func (configuration Configuration) sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.RemoteName = strings.TrimSpace(configuration.RemoteName)
	if len(sanitized.RemoteName) == 0 {
		sanitized.RemoteName = defaults.RemoteName
	}

	sanitized.BranchName = strings.TrimSpace(configuration.BranchName)
	if len(sanitized.BranchName) == 0 {
		sanitized.BranchName = defaults.BranchName
	}

	sanitized.RemoteURL = strings.TrimSpace(configuration.RemoteURL)
	if len(sanitized.RemoteURL) == 0 {
		sanitized.RemoteURL = defaults.RemoteURL
	}

	if sanitized.PreviewCount <= 0 {
		sanitized.PreviewCount = defaults.PreviewCount
	}

	return sanitized
}
