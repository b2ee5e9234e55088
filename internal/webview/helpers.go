package webview

import (
	"os"

	"pkt.systems/tabdeck/core"
)

const (
	blankURL = "about:blank"

	startedProgress  = 0.1
	domReadyProgress = 0.7
)

// navigateURL maps the in-app home page onto a blank document.
func navigateURL(url, home string) string {
	if url == "" || url == home {
		return blankURL
	}
	return url
}

// historyFlags reports back/forward availability from a navigation history.
func historyFlags(current int64, entries int) (back, forward bool) {
	if entries == 0 || current < 0 {
		return false, false
	}
	return current > 0, current < int64(entries)-1
}

func writeCapture(dir string, data []byte) (core.TempRef, error) {
	f, err := os.CreateTemp(dir, "capture-*.jpg")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return core.TempRef(f.Name()), nil
}
