package imagecurate

import (
	"bytes"
	"io"
	"strings"

	"github.com/bep/imagemeta"
)

// provenanceReadLimit bounds the bytes read when scanning for metadata.
const provenanceReadLimit = 1 << 20

// Provenance holds rights and attribution fields from EXIF, IPTC and XMP.
// It is informational only and never changes a disposition.
type Provenance struct {
	Copyright string `json:"copyright,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Credit    string `json:"credit,omitempty"`
	Source    string `json:"source,omitempty"`
	License   string `json:"license,omitempty"`
	Stock     bool   `json:"stock,omitempty"` // a stock agency is named in the rights fields

	// CreativeCommons is set when License or Copyright links a CC deed or
	// public-domain dedication.
	CreativeCommons bool `json:"creativeCommons,omitempty"`
}

// stockKeywords are substrings that indicate a stock-photo agency when found
// (case-insensitive) in a rights field.
var stockKeywords = []string{
	"shutterstock",
	"gettyimages",
	"getty images",
	"istockphoto",
	"istock",
	"alamy",
	"depositphotos",
	"dreamstime",
	"123rf",
	"adobestock",
	"adobe stock",
	"bigstockphoto",
	"stocksy",
	"pond5",
	"freepik",
}

// wantedTags maps (source, tag-name) → true for every tag we care about.
var wantedTags = map[imagemeta.Source]map[string]bool{
	imagemeta.IPTC: {
		"CopyrightNotice": true,
		"Credit":          true,
		"Byline":          true,
		"Source":          true,
	},
	imagemeta.EXIF: {
		"Copyright": true,
		"Artist":    true,
	},
	imagemeta.XMP: {
		"WebStatement": true,
		"License":      true,
		"Rights":       true,
		"Creator":      true,
	},
}

// ExtractProvenance parses EXIF/IPTC/XMP metadata from raw image bytes.
// Returns nil if the data is empty, unparseable or carries none of the fields.
func ExtractProvenance(data []byte) *Provenance {
	if len(data) == 0 {
		return nil
	}

	p := &Provenance{}
	found := false

	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF | imagemeta.IPTC | imagemeta.XMP,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			if tags, ok := wantedTags[ti.Source]; ok {
				return tags[ti.Tag]
			}
			return false
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if s := tagValueString(ti.Value); s != "" && p.set(ti.Tag, s) {
				found = true
			}
			return nil
		},
	})
	if err != nil || !found {
		return nil
	}

	p.Stock = p.namesStockAgency()
	p.CreativeCommons = IsCreativeCommonsURL(p.License) || IsCreativeCommonsURL(p.Copyright)
	return p
}

// set assigns the first non-empty value seen for a tag.
func (p *Provenance) set(tag, value string) bool {
	var field *string
	switch tag {
	case "Copyright", "CopyrightNotice", "Rights":
		field = &p.Copyright
	case "Artist", "Byline", "Creator":
		field = &p.Artist
	case "Credit":
		field = &p.Credit
	case "Source":
		field = &p.Source
	case "License", "WebStatement":
		field = &p.License
	default:
		return false
	}
	if *field == "" {
		*field = value
	}
	return true
}

func (p *Provenance) namesStockAgency() bool {
	for _, f := range []string{p.Copyright, p.Artist, p.Credit, p.Source} {
		if f == "" {
			continue
		}
		lower := strings.ToLower(f)
		for _, kw := range stockKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// ccDeedPaths identify a Creative Commons license or public-domain
// dedication, as opposed to the CC homepage.
var ccDeedPaths = []string{
	"creativecommons.org/licenses/",
	"creativecommons.org/publicdomain/",
}

// IsCreativeCommonsURL reports whether s contains a Creative Commons license
// or public-domain URL. Case-insensitive; scheme-less URLs match too.
func IsCreativeCommonsURL(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, seg := range ccDeedPaths {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return false
}

// readProvenance loads the head of the file and extracts its metadata.
// Any failure yields nil.
func (cfg *Config) readProvenance(path string) *Provenance {
	f, err := cfg.Fs.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, provenanceReadLimit))
	if err != nil {
		return nil
	}
	return ExtractProvenance(data)
}

// tagValueString extracts a string from a tag value.
// XMP values may be string or []string (from altList/seqList).
func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
