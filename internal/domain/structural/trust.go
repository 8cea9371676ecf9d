package structural

import "strings"

// ToolTrust classifies an authoring/producer tag.
type ToolTrust string

const (
	ToolTrusted    ToolTrust = "trusted"
	ToolSuspicious ToolTrust = "suspicious"
	ToolUnknown    ToolTrust = "unknown"
	ToolAbsent     ToolTrust = "absent"
)

// ToolPolicy holds case-insensitive substring signatures. Suspicious
// signatures win over trusted ones when both match.
type ToolPolicy struct {
	Trusted    []string `yaml:"trusted" toml:"trusted"`
	Suspicious []string `yaml:"suspicious" toml:"suspicious"`
}

// DefaultToolPolicy lists well-known desktop and print-pipeline producers
// as trusted, and online converters or scripted generators as suspicious.
func DefaultToolPolicy() ToolPolicy {
	return ToolPolicy{
		Trusted: []string{
			"adobe pdf library", "acrobat distiller", "adobe acrobat",
			"microsoft word", "microsoft® word", "microsoft excel", "microsoft® excel",
			"microsoft: print to pdf", "libreoffice", "openoffice",
			"quartz pdfcontext", "mac os x", "macos", "skia/pdf",
			"ghostscript", "xerox", "canon", "ricoh", "kyocera", "konica minolta",
			"hp scan", "epson scan", "abbyy", "nuance", "kofax",
		},
		Suspicious: []string{
			"ilovepdf", "smallpdf", "pdf24", "sejda", "pdfcandy", "online2pdf",
			"sodapdf", "soda pdf", "convertio", "pdfescape", "docfly", "pdffiller",
			"pdf2go", "hipdf", "cloudconvert", "zamzar", "freepdfconvert",
			"wkhtmltopdf", "headlesschrome", "puppeteer", "phantomjs",
			"fpdf", "tcpdf", "dompdf", "reportlab", "pdfkit",
		},
	}
}

// Classify returns the trust class of a producer or creator string.
func (p ToolPolicy) Classify(tool string) ToolTrust {
	t := strings.ToLower(strings.TrimSpace(tool))
	if t == "" {
		return ToolAbsent
	}
	for _, s := range p.Suspicious {
		if s != "" && strings.Contains(t, strings.ToLower(s)) {
			return ToolSuspicious
		}
	}
	for _, s := range p.Trusted {
		if s != "" && strings.Contains(t, strings.ToLower(s)) {
			return ToolTrusted
		}
	}
	return ToolUnknown
}
