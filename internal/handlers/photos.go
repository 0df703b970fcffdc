package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/britstern2026-jpg/qr-photo-uploader-backend/internal/photo"
)

// ListPhotosBody is the JSON body of GET /photos.
type ListPhotosBody struct {
	OK     bool          `json:"ok" doc:"Always true on success"`
	Photos []photo.Photo `json:"photos" doc:"Public photos, newest first"`
}

// ListPhotosOutput is the Huma output struct for GET /photos.
type ListPhotosOutput struct {
	Body ListPhotosBody
}

// PhotosHandler serves the listing operation.
type PhotosHandler struct {
	gateway *photo.Gateway
}

// NewPhotosHandler creates a new PhotosHandler.
func NewPhotosHandler(gateway *photo.Gateway) *PhotosHandler {
	return &PhotosHandler{gateway: gateway}
}

// Register adds GET /photos to api.
func (h *PhotosHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-photos",
		Method:      http.MethodGet,
		Path:        "/photos",
		Summary:     "List public photos",
		Description: "Returns every object tagged visibility=public with its unsigned URL, newest first.",
		Tags:        []string{"Photos"},
	}, h.List)
}

// List runs Enumerate. Failures come back as *ErrorBody so Huma renders
// them as {"error": "..."}.
func (h *PhotosHandler) List(ctx context.Context, _ *struct{}) (*ListPhotosOutput, error) {
	photos, err := h.gateway.Enumerate(ctx)
	if err != nil {
		return nil, NewErrorBody(err)
	}
	if photos == nil {
		photos = []photo.Photo{}
	}
	return &ListPhotosOutput{Body: ListPhotosBody{OK: true, Photos: photos}}, nil
}

// RegisterUploadDoc documents POST /upload in the OpenAPI description. The
// route itself is served by UploadHandler because it streams the multipart
// body instead of decoding it up front.
func RegisterUploadDoc(api huma.API) {
	api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "upload-photo",
		Method:      http.MethodPost,
		Path:        "/upload",
		Summary:     "Upload one photo",
		Description: "Stores the photo under a generated name and tags it public or private.",
		Tags:        []string{"Photos"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {
					Schema: &huma.Schema{
						Type:     huma.TypeObject,
						Required: []string{FieldPhoto},
						Properties: map[string]*huma.Schema{
							FieldPhoto:      {Type: huma.TypeString, Format: "binary", Description: "Image file"},
							FieldName:       {Type: huma.TypeString, Description: "Base name, sanitized before use"},
							FieldVisibility: {Type: huma.TypeString, Description: `"public" lists the photo; anything else is private`},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {Description: "Photo stored"},
			"400": {Description: "No file uploaded or invalid field"},
			"413": {Description: "Upload exceeds the size limit"},
			"500": {Description: "Storage write failed"},
		},
	})
}
