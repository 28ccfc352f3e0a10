package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// 文件上传相关常量
const (
	MimeImage = "image/"
	MimePDF   = "application/pdf"
)

var AllowedImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// 生成参数取值
var AllowedDifficulties = []string{"easy", "medium", "hard", "mixed"}

// 题目列表分页
const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)
