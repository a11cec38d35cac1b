package datago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/codes"
)

// fileLookupEnvelope covers both response shapes of the metadata-lookup
// endpoint: a nested registration object or the flat fields.
type fileLookupEnvelope struct {
	FileDataRegistVO *struct {
		AtchFileID   string          `json:"atchFileId"`
		FileDetailSn json.RawMessage `json:"fileDetailSn"`
	} `json:"fileDataRegistVO"`
	AtchFileID   string          `json:"atchFileId"`
	FileDetailSn json.RawMessage `json:"fileDetailSn"`
}

// the serial arrives as a string or a number depending on the endpoint mood
func rawSerial(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "1"
	}
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return "1"
	}
	return s
}

// LookupFileRef calls the portal's metadata-lookup endpoint for the data id
// and parses its JSON envelope for the attachment identifier and serial.
// Every failure mode -- transport error, non-200, HTML fallback response,
// malformed JSON, empty identifier -- reports ok=false so the caller moves
// on to the next resolution tier; none of them is an error.
func (c *Client) LookupFileRef(ctx context.Context, dataID, referer string) (FileRef, bool) {
	ctx, span := tracer.Start(ctx, "client:LookupFileRef")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"publicDataPk": dataID,
			"fileDetailSn": "1",
		}).
		SetHeader("referer", referer).
		SetHeader("accept", "application/json, text/plain, */*").
		Get(lookupPath)
	if err != nil {
		slog.WarnContext(ctx, "file metadata lookup failed", "data_id", dataID, "err", err)
		return FileRef{}, false
	}
	if res.StatusCode() != 200 {
		slog.WarnContext(ctx, "file metadata lookup returned non-200", "data_id", dataID, "status", res.StatusCode())
		return FileRef{}, false
	}
	if !strings.Contains(res.Header().Get("Content-Type"), "application/json") {
		slog.DebugContext(ctx, "file metadata lookup returned non-json", "data_id", dataID)
		return FileRef{}, false
	}

	var envelope fileLookupEnvelope
	if err := json.Unmarshal(res.Body(), &envelope); err != nil {
		slog.WarnContext(ctx, "file metadata lookup returned malformed json", "data_id", dataID, "err", err)
		return FileRef{}, false
	}

	ref := FileRef{FileDetailSn: "1"}
	if envelope.FileDataRegistVO != nil {
		ref.AtchFileID = envelope.FileDataRegistVO.AtchFileID
		ref.FileDetailSn = rawSerial(envelope.FileDataRegistVO.FileDetailSn)
	} else if envelope.AtchFileID != "" {
		ref.AtchFileID = envelope.AtchFileID
		ref.FileDetailSn = rawSerial(envelope.FileDetailSn)
	}
	if ref.AtchFileID == "" {
		return FileRef{}, false
	}
	return ref, true
}

var htmlSignature = regexp.MustCompile(`(?i)<!doctype|<html`)

// LooksLikeHTML reports whether a download response is actually an HTML
// error or redirect page rather than a data file, judged both by the
// content-type header and by sniffing the leading bytes for a doctype/tag
// signature.
func LooksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") || strings.Contains(contentType, "application/xhtml") {
		return true
	}
	prefix := body
	if len(prefix) > 512 {
		prefix = prefix[:512]
	}
	return htmlSignature.Match(bytes.TrimLeft(prefix, " \t\r\n"))
}

// contentDispositionFilename pulls the server-provided filename, if any, out
// of a Content-Disposition header.
var contentDispositionRegexes = []*regexp.Regexp{
	regexp.MustCompile(`filename=["'](.*?)["']`),
	regexp.MustCompile(`filename=([^;]+)`),
}

func contentDispositionFilename(header string) string {
	for _, re := range contentDispositionRegexes {
		if groups := re.FindStringSubmatch(header); len(groups) == 2 {
			return strings.TrimSpace(groups[1])
		}
	}
	return ""
}

// FetchedFile is a successfully retrieved data file plus the extension the
// server declared for it, when it declared one.
type FetchedFile struct {
	Body      []byte
	ServerExt string
}

func (c *Client) fetchFileURL(ctx context.Context, path string, query map[string]string, referer string) (FetchedFile, error) {
	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetHeader("referer", referer).
		SetHeader("accept", "*/*").
		Get(path)
	if err != nil {
		return FetchedFile{}, err
	}
	if res.StatusCode() != 200 {
		return FetchedFile{}, fmt.Errorf("download returned http %d", res.StatusCode())
	}

	body := res.Body()
	if LooksLikeHTML(res.Header().Get("Content-Type"), body) {
		return FetchedFile{}, fmt.Errorf("download returned an html page instead of a file")
	}
	if len(body) == 0 {
		return FetchedFile{}, fmt.Errorf("download returned an empty file")
	}

	out := FetchedFile{Body: body}
	if name := contentDispositionFilename(res.Header().Get("Content-Disposition")); name != "" {
		if dot := strings.LastIndexByte(name, '.'); dot >= 0 && dot < len(name)-1 {
			out.ServerExt = strings.ToLower(name[dot+1:])
		}
	}
	return out, nil
}

// FetchFile retrieves the file behind a resolved identifier, with the
// item's detail page as referer. HTML and empty responses are failures.
func (c *Client) FetchFile(ctx context.Context, ref FileRef, referer string) (FetchedFile, error) {
	ctx, span := tracer.Start(ctx, "client:FetchFile")
	defer span.End()

	file, err := c.fetchFileURL(ctx, downloadPath, map[string]string{
		"atchFileId":   ref.AtchFileID,
		"fileDetailSn": ref.FileDetailSn,
	}, referer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "file retrieval failed")
	}
	return file, err
}

// FetchFileLastResort hits the endpoint variant tried once after every
// serial retry is exhausted.
func (c *Client) FetchFileLastResort(ctx context.Context, dataID, referer string) (FetchedFile, error) {
	ctx, span := tracer.Start(ctx, "client:FetchFileLastResort")
	defer span.End()

	file, err := c.fetchFileURL(ctx, lookupPath, map[string]string{
		"publicDataPk":   dataID,
		"file_detail_sn": "1",
	}, referer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "last-resort retrieval failed")
	}
	return file, err
}
