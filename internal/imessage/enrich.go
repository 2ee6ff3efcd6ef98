package imessage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// AttachmentInfo is the client-facing description of one attachment.
type AttachmentInfo struct {
	Kind     string `json:"kind"` // image, video, audio, file
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitzero"`
	Size     string `json:"size,omitzero"`
}

// ClassifyAttachment buckets an attachment into a coarse media kind from
// its mime type, falling back to the UTI.
func ClassifyAttachment(a Attachment) AttachmentInfo {
	info := AttachmentInfo{
		Kind:     "file",
		Filename: a.TransferName,
		MimeType: a.MimeType,
		Size:     HumanSize(a.TotalBytes),
	}
	if info.Filename == "" {
		info.Filename = filepath.Base(a.Filename)
	}

	switch {
	case strings.HasPrefix(a.MimeType, "image/"):
		info.Kind = "image"
	case strings.HasPrefix(a.MimeType, "video/"):
		info.Kind = "video"
	case strings.HasPrefix(a.MimeType, "audio/"):
		info.Kind = "audio"
	default:
		switch {
		case strings.Contains(a.UTI, "image") || a.UTI == "public.jpeg" || a.UTI == "public.png" || a.UTI == "public.heic":
			info.Kind = "image"
		case strings.Contains(a.UTI, "movie") || strings.Contains(a.UTI, "video"):
			info.Kind = "video"
		case strings.Contains(a.UTI, "audio"):
			info.Kind = "audio"
		}
	}
	return info
}

// HumanSize renders a byte count for display ("2.3 MB"). Zero sizes render
// empty since chat.db rows frequently lack total_bytes.
func HumanSize(n int64) string {
	if n <= 0 {
		return ""
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
