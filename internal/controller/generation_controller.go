package controller

import (
	"bytes"
	"io"
	"mime/multipart"

	"socratic_backend/internal/config"
	"socratic_backend/internal/service"
	"socratic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type GenerationController struct {
	GenerationService *service.GenerationService
	Cfg               *config.Config
}

func NewGenerationController(generationService *service.GenerationService, cfg *config.Config) *GenerationController {
	return &GenerationController{GenerationService: generationService, Cfg: cfg}
}

// readUpload 读取上传文件，超过大小上限返回 InvalidRequest
func readUpload(fh *multipart.FileHeader, maxSize int64) (service.Upload, error) {
	if maxSize > 0 && fh.Size > maxSize {
		return service.Upload{}, util.InvalidRequest("file %s exceeds the %d byte limit", util.SafeFilename(fh.Filename), maxSize)
	}
	f, err := fh.Open()
	if err != nil {
		return service.Upload{}, util.InvalidRequest("cannot open upload %s", util.SafeFilename(fh.Filename))
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return service.Upload{}, util.InvalidRequest("cannot read upload %s", util.SafeFilename(fh.Filename))
	}
	return service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// FromText godoc
// @Summary 根据文本出题
// @Tags 出题
// @Accept  json
// @Produce  json
// @Param   body body service.TextGenerationRequest true "教学内容与出题参数"
// @Success 201 {object} util.Response{data=service.GenerationResult} "生成成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 502 {object} util.Response "模型生成失败"
// @Router /api/v1/generate/from-text [post]
func (c *GenerationController) FromText(ctx *gin.Context) {
	var req service.TextGenerationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.GenerationService.GenerateFromText(ctx.Request.Context(), req, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// FromPDF godoc
// @Summary 根据 PDF 出题
// @Tags 出题
// @Accept  multipart/form-data
// @Produce  json
// @Param   file formData file true "PDF 文件"
// @Param   num_questions formData int false "题目数量"
// @Param   question_types formData string false "题型，逗号分隔：mcq,open_ended"
// @Param   difficulty formData string false "easy/medium/hard/mixed"
// @Param   topic_focus formData string false "重点主题"
// @Success 201 {object} util.Response{data=service.GenerationResult} "生成成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 422 {object} util.Response "PDF 无法解析"
// @Failure 502 {object} util.Response "模型生成失败"
// @Router /api/v1/generate/from-pdf [post]
func (c *GenerationController) FromPDF(ctx *gin.Context) {
	var opts service.GenerationOptions
	if err := ctx.ShouldBind(&opts); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	if !util.HasPDFExtension(fh.Filename) {
		util.BadRequest(ctx, "File must be a PDF")
		return
	}

	upload, err := readUpload(fh, c.Cfg.Document.MaxUploadSize)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	result, err := c.GenerationService.GenerateFromPDF(ctx.Request.Context(), upload, opts, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// FromImages godoc
// @Summary 根据图片出题
// @Tags 出题
// @Accept  multipart/form-data
// @Produce  json
// @Param   files formData file true "图片，可多张"
// @Param   num_questions formData int false "题目数量"
// @Param   question_types formData string false "题型，逗号分隔"
// @Param   difficulty formData string false "easy/medium/hard/mixed"
// @Success 201 {object} util.Response{data=service.GenerationResult} "生成成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 422 {object} util.Response "图片无法解析"
// @Router /api/v1/generate/from-images [post]
func (c *GenerationController) FromImages(ctx *gin.Context) {
	var opts service.GenerationOptions
	if err := ctx.ShouldBind(&opts); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	form, err := ctx.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		util.BadRequest(ctx, "At least one image is required")
		return
	}

	uploads := make([]service.Upload, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		upload, err := readUpload(fh, c.Cfg.Document.MaxUploadSize)
		if err != nil {
			util.HandleError(ctx, err)
			return
		}
		mimeType, _, err := util.SniffMimeType(bytes.NewReader(upload.Data), util.AllowedImageTypes)
		if err != nil {
			util.BadRequest(ctx, "Unsupported image type: "+util.SafeFilename(fh.Filename))
			return
		}
		upload.ContentType = mimeType
		uploads = append(uploads, upload)
	}

	result, err := c.GenerationService.GenerateFromImages(ctx.Request.Context(), uploads, opts, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// GetSession godoc
// @Summary 获取出题会话
// @Tags 出题
// @Produce  json
// @Param   id path string true "会话 ID"
// @Success 200 {object} util.Response{data=service.GenerationResult} "成功"
// @Failure 403 {object} util.Response "无权查看"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/v1/generate/session/{id} [get]
func (c *GenerationController) GetSession(ctx *gin.Context) {
	result, err := c.GenerationService.GetSession(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
