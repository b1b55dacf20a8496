package media

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"video_reposter/internal/domain"
)

const tsPacketSize = 188

// validate checks that path holds a video container and returns its MIME
// type and file extension.
func validate(path string, size int64, segmented bool) (string, string, error) {
	if size == 0 {
		return "", "", domain.NewError(domain.KindMediaInvalid, "validate media", fmt.Errorf("empty file"))
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", "", fmt.Errorf("detect media type: %w", err)
	}

	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			ext := mime.Extension()
			if ext == "" {
				ext = ".mp4"
			}
			return mime.String(), ext, nil
		}
	}

	if segmented && isTransportStream(path, size) {
		return "video/mp2t", ".ts", nil
	}

	return "", "", domain.NewError(domain.KindMediaInvalid, "validate media",
		fmt.Errorf("not a video container: %s", mime.String()))
}

// isTransportStream looks for the MPEG-TS sync byte at the start of the
// first two packets.
func isTransportStream(path string, size int64) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, tsPacketSize+1)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false
	}
	if n == 0 || buf[0] != 0x47 {
		return false
	}
	if size > tsPacketSize && n > tsPacketSize && buf[tsPacketSize] != 0x47 {
		return false
	}
	return true
}
