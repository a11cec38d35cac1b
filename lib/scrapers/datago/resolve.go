package datago

import (
	"fmt"
	"strings"
)

// ExtMap maps the portal's declared format tags to file extensions. SHP is
// served zipped.
var ExtMap = map[string]string{
	"CSV":  "csv",
	"XLSX": "xlsx",
	"XLS":  "xls",
	"DOCX": "docx",
	"HWP":  "hwp",
	"HWPX": "hwpx",
	"JSON": "json",
	"XML":  "xml",
	"JPG":  "jpg",
	"PNG":  "png",
	"GIF":  "gif",
	"ZIP":  "zip",
	"PDF":  "pdf",
	"SHP":  "zip",
}

// DefaultExtension is assumed when no hint resolves.
const DefaultExtension = "csv"

// ExtSource identifies which hint an extension was resolved from.
type ExtSource string

const (
	ExtFromFormatTag   ExtSource = "format_tag"
	ExtFromTitle       ExtSource = "title_format"
	ExtFromFormatTypes ExtSource = "format_types"
	ExtFromMediaType   ExtSource = "media_type"
	ExtFromFileID      ExtSource = "file_detail_id"
	ExtFromServer      ExtSource = "content_disposition"
	ExtDefault         ExtSource = "default"
)

// extensions trusted when embedded in a file-identifier token
var knownFileIDExts = map[string]bool{
	"csv": true, "xlsx": true, "xls": true, "json": true, "xml": true,
	"hwp": true, "pdf": true, "docx": true, "hwpx": true,
}

// ResolveExtension picks a file extension for the item out of its
// independently-sourced format hints. The hints are tried as an ordered
// strategy list; the first that yields a value wins, and the winning source
// is reported so the choice stays auditable. Conflicts resolve in favor of
// the more explicit hint: the detail page's extension field beats the
// title-embedded token, which beats the list page's format spans, which
// beat the media-type guess.
func ResolveExtension(item Item) (string, ExtSource) {
	if ext, ok := ExtMap[strings.ToUpper(strings.TrimSpace(item.Extension))]; ok {
		return ext, ExtFromFormatTag
	}
	if ext, ok := ExtMap[strings.ToUpper(strings.TrimSpace(item.TitleFormat))]; ok {
		return ext, ExtFromTitle
	}
	for _, fmtType := range item.FormatTypes {
		if ext, ok := ExtMap[strings.ToUpper(strings.TrimSpace(fmtType))]; ok {
			return ext, ExtFromFormatTypes
		}
	}
	switch item.MediaType {
	case "이미지", "사진":
		return "jpg", ExtFromMediaType
	}
	return DefaultExtension, ExtDefault
}

// ExtensionFromFileDetailID extracts a trusted extension embedded in a
// compound file-identifier token (`id_serial.extension`).
func ExtensionFromFileDetailID(fileDetailID string) (string, bool) {
	dot := strings.LastIndexByte(fileDetailID, '.')
	if dot < 0 || dot == len(fileDetailID)-1 {
		return "", false
	}
	ext := strings.ToLower(fileDetailID[dot+1:])
	return ext, knownFileIDExts[ext]
}

// FileRef is a concrete, retrievable file identifier: the attachment id and
// the per-attachment serial number the download endpoint expects.
type FileRef struct {
	AtchFileID   string `json:"atch_file_id"`
	FileDetailSn string `json:"file_detail_sn"`
}

// RefSource identifies which resolution tier produced a FileRef.
type RefSource string

const (
	RefFromLookup   RefSource = "lookup_api"
	RefFromDetailID RefSource = "file_detail_id"
	RefSynthesized  RefSource = "synthesized"
)

// RefFromFileDetailID recovers a FileRef out of the detail page's scraped
// file-detail token: the known `uddi:` prefix is stripped, the remainder
// splits on `_` into identifier and serial, and a dot-suffixed serial
// (`serial.ext`) loses its extension part. A token without a `_` yields the
// whole cleaned token as the identifier with serial "1".
func RefFromFileDetailID(fileDetailID string) (FileRef, bool) {
	if fileDetailID == "" {
		return FileRef{}, false
	}
	clean := strings.ReplaceAll(fileDetailID, "uddi:", "")
	if clean == "" {
		return FileRef{}, false
	}

	parts := strings.Split(clean, "_")
	ref := FileRef{AtchFileID: parts[0], FileDetailSn: "1"}
	if len(parts) >= 2 {
		serial := parts[1]
		if dot := strings.IndexByte(serial, '.'); dot >= 0 {
			serial = serial[:dot]
		}
		if serial != "" {
			ref.FileDetailSn = serial
		}
	}
	return ref, true
}

// SynthesizeRef builds the deterministic fallback identifier used when
// neither the lookup API nor the scraped token yields one: the data id
// zero-padded into the portal's FILE_… template, clamped to the template's
// 20-character width, serial "1".
func SynthesizeRef(dataID string) FileRef {
	id := fmt.Sprintf("FILE_%015s", dataID)
	if len(id) > 20 {
		id = id[len(id)-20:]
	}
	return FileRef{AtchFileID: id, FileDetailSn: "1"}
}

// RetrySerials reports the alternate serial candidates to try after a
// failed retrieval with the given serial: the fixed candidate set minus the
// serial just tried, with "1" appended when it has not been tried yet.
func RetrySerials(tried string) []string {
	candidates := []string{"0", "2", "3"}
	out := make([]string, 0, 4)
	for _, c := range candidates {
		if c != tried {
			out = append(out, c)
		}
	}
	if tried != "1" {
		out = append(out, "1")
	}
	return out
}
