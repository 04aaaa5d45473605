package storage

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// =============================================================================
// Content Type Detection
// =============================================================================

// DetectContentType determines the MIME type of a file.
//
// Detection priority:
// 1. If providedType is non-empty, use it directly
// 2. Try to detect from file extension using mime.TypeByExtension
// 3. Sniff content from the first 512 bytes of data (if available)
// 4. Fall back to "application/octet-stream"
func DetectContentType(providedType, filename string, data io.Reader) string {
	if providedType != "" {
		return providedType
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	if data != nil {
		// http.DetectContentType wants at most 512 bytes
		buffer := make([]byte, 512)
		n, err := io.ReadFull(data, buffer)
		if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
			return http.DetectContentType(buffer[:n])
		}
	}

	return "application/octet-stream"
}

// =============================================================================
// Content Type Validation
// =============================================================================

// AllowedAudioTypes defines the MIME types accepted for voice recording
// uploads. The set matches the container formats the transcription API
// accepts.
var AllowedAudioTypes = map[string]bool{
	"audio/mpeg":  true, // .mp3
	"audio/mp4":   true, // .m4a
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/webm":  true,
	"audio/ogg":   true,
	"audio/flac":  true,
	"video/mp4":   true, // voice memos exported as mp4 containers
	"video/webm":  true,
}

// IsAllowedAudioType checks if a content type is an accepted audio
// format for transcription uploads.
func IsAllowedAudioType(contentType string) bool {
	return AllowedAudioTypes[normalize(contentType)]
}

// IsAudio returns true if the content type is any audio format.
func IsAudio(contentType string) bool {
	return strings.HasPrefix(normalize(contentType), "audio/")
}

// normalize strips parameters (like codec hints) and lowercases the
// base MIME type.
func normalize(contentType string) string {
	baseType := strings.Split(contentType, ";")[0]
	return strings.TrimSpace(strings.ToLower(baseType))
}

// =============================================================================
// File Extension Helpers
// =============================================================================

// ExtensionForContentType returns a common file extension for a MIME
// type, used when generating storage keys from content types.
func ExtensionForContentType(contentType string) string {
	extensions := map[string]string{
		"audio/mpeg":  ".mp3",
		"audio/mp4":   ".m4a",
		"audio/wav":   ".wav",
		"audio/x-wav": ".wav",
		"audio/webm":  ".webm",
		"audio/ogg":   ".ogg",
		"audio/flac":  ".flac",
		"video/mp4":   ".mp4",
		"video/webm":  ".webm",
	}

	if ext, ok := extensions[normalize(contentType)]; ok {
		return ext
	}

	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
