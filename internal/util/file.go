package util

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// SniffMimeType 读取文件头校验 MIME 类型，返回可继续读取完整内容的 reader
// allowedTypes: 允许的 MIME 前缀或完整类型，如 "image/", "application/pdf"
func SniffMimeType(reader io.Reader, allowedTypes []string) (string, io.Reader, error) {
	buffer := make([]byte, 512)
	n, err := io.ReadFull(reader, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	head := buffer[:n]
	rest := io.MultiReader(bytes.NewReader(head), reader)

	mimeType := http.DetectContentType(head)
	for _, allowed := range allowedTypes {
		if strings.HasPrefix(mimeType, allowed) || mimeType == allowed {
			return mimeType, rest, nil
		}
	}

	return mimeType, rest, errors.New("invalid file type: " + mimeType)
}

// HasPDFExtension 只接受 .pdf 后缀
func HasPDFExtension(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// SafeFilename 去掉目录部分，避免对象键被路径穿越
func SafeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
