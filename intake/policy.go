package intake

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/cppla/docintake/apperr"
	"github.com/cppla/docintake/utils"
)

// Known document categories.
const (
	CategoryDriverLicense = "dl"
	CategoryRegistration  = "registration"
	CategoryInsurance     = "insurance"
	CategoryIncome        = "income"
	CategoryOther         = "other"
)

var labels = map[string]string{
	CategoryDriverLicense: "driver_license",
	CategoryRegistration:  "registration",
	CategoryInsurance:     "insurance_card",
	CategoryIncome:        "proof_of_income",
	CategoryOther:         "other_document",
}

// categoryLimits is the most files one request may carry per known category.
var categoryLimits = map[string]int{
	CategoryDriverLicense: 1,
	CategoryRegistration:  1,
	CategoryInsurance:     1,
	CategoryIncome:        1,
	CategoryOther:         10,
}

// Categories returns the known category keys in form order.
func Categories() []string {
	return []string{CategoryDriverLicense, CategoryRegistration, CategoryInsurance, CategoryIncome, CategoryOther}
}

// LabelFor maps a category key to its human label. Unknown keys are their own label.
func LabelFor(category string) string {
	if l, ok := labels[category]; ok {
		return l
	}
	return category
}

// CategoryLimit is the per-request maximum for category, 0 when unbounded.
func CategoryLimit(category string) int {
	return categoryLimits[category]
}

var contentTypeAliases = map[string]string{
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
}

// NormalizeContentType strips parameters and lowercases a Content-Type value.
func NormalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	ct = strings.ToLower(ct)
	if alias, ok := contentTypeAliases[ct]; ok {
		return alias
	}
	return ct
}

// Policy is the upload allow-list and the size and count ceilings.
type Policy struct {
	allowed      map[string]struct{}
	MaxFileBytes int64
	MaxFiles     int
}

// NewPolicy builds a Policy. Empty allowed types mean nothing is accepted.
func NewPolicy(allowedTypes []string, maxFileBytes int64, maxFiles int) *Policy {
	p := &Policy{
		allowed:      make(map[string]struct{}, len(allowedTypes)),
		MaxFileBytes: maxFileBytes,
		MaxFiles:     maxFiles,
	}
	for _, t := range allowedTypes {
		if t = NormalizeContentType(t); t != "" {
			p.allowed[t] = struct{}{}
		}
	}
	return p
}

// Allows reports whether contentType is on the allow-list.
func (p *Policy) Allows(contentType string) bool {
	_, ok := p.allowed[NormalizeContentType(contentType)]
	return ok
}

// Validate checks one file against the allow-list and the per-file ceiling.
func (p *Policy) Validate(f File) error {
	if !p.Allows(f.ContentType) {
		return apperr.UnsupportedType(fmt.Sprintf("unsupported file type %q for %s; please upload images or PDFs", f.ContentType, f.displayName()))
	}
	if p.MaxFileBytes > 0 && f.Size > p.MaxFileBytes {
		return apperr.TooLarge(fmt.Sprintf("%s exceeds the %d MB limit", f.displayName(), p.MaxFileBytes/(1<<20)))
	}
	return nil
}

// ValidateCount checks the request-wide and per-category file counts.
func (p *Policy) ValidateCount(files []File) error {
	if p.MaxFiles > 0 && len(files) > p.MaxFiles {
		return apperr.TooManyFiles(fmt.Sprintf("at most %d files per upload", p.MaxFiles))
	}
	perCategory := make(map[string]int)
	for _, f := range files {
		perCategory[f.Category]++
	}
	for category, n := range perCategory {
		if limit := CategoryLimit(category); limit > 0 && n > limit {
			return apperr.TooManyFiles(fmt.Sprintf("at most %d file(s) for %s", limit, category))
		}
	}
	return nil
}

// NameContext carries the request data embedded in a stored filename.
type NameContext struct {
	AppID string
	At    time.Time
}

const maxExtLength = 10

// BuildStoredFilename returns <app>_<label>_<timestamp>_<rand><.ext>. Every
// part is limited to [A-Za-z0-9_-] and the extension keeps its original
// (lowercased) suffix.
func BuildStoredFilename(originalName, category string, nc NameContext) (string, error) {
	suffix, err := utils.GenerateID(4)
	if err != nil {
		return "", err
	}
	app := SafeComponent(nc.AppID)
	if app == "" {
		app = "NO_APP_ID"
	}
	label := SafeComponent(LabelFor(category))
	if label == "" {
		label = "document"
	}
	at := nc.At.UTC()
	ts := at.Format("2006-01-02T15-04-05") + fmt.Sprintf("-%03dZ", at.Nanosecond()/int(time.Millisecond))
	return app + "_" + label + "_" + ts + "_" + suffix + safeExt(originalName), nil
}

// SafeComponent replaces every run of characters outside [A-Za-z0-9_-] with
// one '_' and trims the result.
func SafeComponent(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.TrimSpace(s) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	out := strings.Trim(b.String(), "_-")
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func safeExt(originalName string) string {
	// Browsers may send Windows paths.
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(base))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, r := range ext[1:] {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return ""
		}
	}
	return ext
}
