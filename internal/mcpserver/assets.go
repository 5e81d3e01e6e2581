package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxAssetBytes caps downloaded and decoded assets at 10 MB.
const maxAssetBytes = 10 << 20

var (
	assetExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true,
		".gif": true, ".webp": true, ".svg": true, ".pdf": true,
	}

	extByMIME = map[string]string{
		"image/png":       ".png",
		"image/jpeg":      ".jpg",
		"image/gif":       ".gif",
		"image/webp":      ".webp",
		"image/svg+xml":   ".svg",
		"application/pdf": ".pdf",
	}

	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

type assetResult struct {
	SavedPath string `json:"saved_path"`
	Markdown  string `json:"markdown"`
}

// uploadAsset fetches an asset from an http(s) URL or decodes a data: URI,
// verifies its content matches the claimed type, and writes it under the
// vault's attachments folder.
func (s *Server) uploadAsset(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename := req.GetString("filename", "")

	var data []byte
	var extFromSource string
	if strings.HasPrefix(rawURL, "data:") {
		data, extFromSource, err = decodeDataURL(rawURL)
	} else {
		data, extFromSource, err = fetchRemoteAsset(rawURL)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(data) > maxAssetBytes {
		return mcp.NewToolResultError(fmt.Sprintf("asset too large: %d bytes (max %d)", len(data), maxAssetBytes)), nil
	}

	if filename == "" {
		filename = assetFilename(rawURL, extFromSource)
	}
	filename = unsafeFilenameChars.ReplaceAllString(filepath.Base(filename), "_")
	if filename == "" || filename == "." {
		filename = uuid.NewString()
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !assetExtensions[ext] {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported extension %q (allowed: png, jpg, jpeg, gif, webp, svg, pdf)", ext)), nil
	}
	if err := checkAssetContent(data, ext); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	savePath := path.Join("attachments", filename)
	if s.store.Exists(savePath) {
		return mcp.NewToolResultError(fmt.Sprintf("already exists: %s", savePath)), nil
	}
	if err := s.store.Write(savePath, data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save asset: %v", err)), nil
	}

	urlPath := "/attachments/" + filename
	return jsonResult(assetResult{
		SavedPath: urlPath,
		Markdown:  fmt.Sprintf("![%s](%s)", filename, urlPath),
	}), nil
}

// decodeDataURL decodes a data:[<mediatype>];base64,<data> URI and returns
// the bytes plus the extension implied by the media type.
func decodeDataURL(uri string) ([]byte, string, error) {
	meta, encoded, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("invalid data URI: no comma separator")
	}
	if !strings.Contains(meta, ";base64") {
		return nil, "", fmt.Errorf("only base64 data URIs are supported")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(encoded); err != nil {
			return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
		}
	}

	mime := strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0]
	ext, ok := extByMIME[mime]
	if !ok {
		return nil, "", fmt.Errorf("unsupported media type %q in data URI", mime)
	}
	return data, ext, nil
}

// fetchRemoteAsset downloads over http(s), refusing loopback and cloud
// metadata targets on the initial request and on every redirect hop.
func fetchRemoteAsset(rawURL string) ([]byte, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, "", fmt.Errorf("unsupported scheme %q (only http/https)", parsed.Scheme)
	}
	if err := rejectInternalHost(parsed.Hostname()); err != nil {
		return nil, "", err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return rejectInternalHost(req.URL.Hostname())
		},
	}

	resp, err := client.Get(rawURL) //nolint:noctx
	if err != nil {
		return nil, "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxAssetBytes {
		return nil, "", fmt.Errorf("asset too large: exceeds %d bytes", maxAssetBytes)
	}

	ct := strings.Split(resp.Header.Get("Content-Type"), ";")[0]
	return data, extByMIME[ct], nil
}

// rejectInternalHost blocks loopback addresses and the cloud metadata
// endpoint shared by AWS, GCP, and Azure.
func rejectInternalHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ip := net.ParseIP(host)
	if ip == nil {
		ips, lookupErr := net.LookupIP(host)
		if lookupErr != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let the client surface DNS failures
		}
		ip = ips[0]
	}
	if ip.IsLoopback() {
		return fmt.Errorf("blocked host: loopback address %s", host)
	}
	if ip.Equal(net.ParseIP("169.254.169.254")) {
		return fmt.Errorf("blocked host: cloud metadata address %s", host)
	}
	return nil
}

// assetFilename derives a filename from the URL path, falling back to a
// random name with the source-implied extension.
func assetFilename(rawURL, sourceExt string) string {
	if !strings.HasPrefix(rawURL, "data:") {
		if parsed, err := url.Parse(rawURL); err == nil {
			base := path.Base(parsed.Path)
			if base != "" && base != "." && base != "/" && strings.Contains(base, ".") {
				return base
			}
		}
	}
	if sourceExt == "" {
		sourceExt = ".bin"
	}
	return uuid.NewString() + sourceExt
}

// checkAssetContent sniffs the bytes and rejects a mismatch with the
// claimed extension. SVG is text, so it gets a tag check instead.
func checkAssetContent(data []byte, ext string) error {
	if ext == ".svg" {
		prefix := data
		if len(prefix) > 1024 {
			prefix = prefix[:1024]
		}
		if !bytes.Contains(prefix, []byte("<svg")) {
			return fmt.Errorf("content is not SVG (missing <svg tag)")
		}
		return nil
	}

	detected := strings.Split(http.DetectContentType(data), ";")[0]
	detectedExt := extByMIME[detected]
	if ext == ".jpg" || ext == ".jpeg" {
		if detectedExt != ".jpg" {
			return fmt.Errorf("content does not match extension %s (detected %s)", ext, detected)
		}
		return nil
	}
	if detectedExt != ext {
		return fmt.Errorf("content does not match extension %s (detected %s)", ext, detected)
	}
	return nil
}
