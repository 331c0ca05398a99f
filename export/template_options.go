package export

import "strings"

// PlaceholderToken wraps name as "${name}" unless it already is a token.
func PlaceholderToken(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "${") && strings.HasSuffix(name, "}") {
		return name
	}
	return "${" + name + "}"
}

// BoolPtr returns a pointer to value.
func BoolPtr(value bool) *bool {
	return &value
}

func (o Options) withDefaults() Options {
	if o.TitlePlaceholder == "" {
		o.TitlePlaceholder = DefaultTitlePlaceholder
	}
	if o.HeadersPlaceholder == "" {
		o.HeadersPlaceholder = DefaultHeadersPlaceholder
	}
	if o.DataPlaceholder == "" {
		o.DataPlaceholder = DefaultDataPlaceholder
	}
	if o.FootersPlaceholder == "" {
		o.FootersPlaceholder = DefaultFootersPlaceholder
	}
	return o
}

func (o Options) autoMergeTitle() bool {
	return o.AutoMergeTitle == nil || *o.AutoMergeTitle
}

func (o Options) autoSizeColumns() bool {
	return o.AutoSizeColumns == nil || *o.AutoSizeColumns
}

func mergeOptions(base Options, override Options) Options {
	out := base
	if override.Title != "" {
		out.Title = override.Title
	}
	if override.TitlePlaceholder != "" {
		out.TitlePlaceholder = override.TitlePlaceholder
	}
	if override.HeadersPlaceholder != "" {
		out.HeadersPlaceholder = override.HeadersPlaceholder
	}
	if override.DataPlaceholder != "" {
		out.DataPlaceholder = override.DataPlaceholder
	}
	if override.FootersPlaceholder != "" {
		out.FootersPlaceholder = override.FootersPlaceholder
	}
	if override.SheetIndex != 0 {
		out.SheetIndex = override.SheetIndex
	}
	if override.AutoMergeTitle != nil {
		out.AutoMergeTitle = override.AutoMergeTitle
	}
	if override.AutoSizeColumns != nil {
		out.AutoSizeColumns = override.AutoSizeColumns
	}
	if override.Template != "" {
		out.Template = override.Template
	}
	if override.MaxRows != 0 {
		out.MaxRows = override.MaxRows
	}
	if override.MaxBytes != 0 {
		out.MaxBytes = override.MaxBytes
	}
	if override.Format.Timezone != "" {
		out.Format.Timezone = override.Format.Timezone
	}
	out.AdditionalPlaceholders = mergePlaceholders(out.AdditionalPlaceholders, override.AdditionalPlaceholders)
	return out
}

func mergePlaceholders(base, override map[string]string) map[string]string {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range override {
		out[key] = value
	}
	return out
}
