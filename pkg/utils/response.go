package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.WithError(err).Warn("failed to encode response")
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}

// RespondInternal 500 响应；只有 debug 打开时才把错误细节返回给客户端。
func RespondInternal(w http.ResponseWriter, err error, debug bool) {
	message := "An unexpected error occurred"
	if debug && err != nil {
		message = fmt.Sprintf("Unexpected error: %v", err)
	}
	RespondError(w, http.StatusInternalServerError, message)
}

// ServeAttachment 以附件形式发送文件，404 如果文件不存在。
func ServeAttachment(w http.ResponseWriter, r *http.Request, path, downloadName string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			RespondError(w, http.StatusNotFound, "File not found")
			return
		}
		RespondError(w, http.StatusInternalServerError, "failed to open file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		RespondError(w, http.StatusNotFound, "File not found")
		return
	}

	if downloadName == "" {
		downloadName = filepath.Base(path)
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, downloadName))
	if filepath.Ext(downloadName) == ".csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	}
	http.ServeContent(w, r, downloadName, info.ModTime(), f)
}
