package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/catchmeifyoucaan/lagosai/models"
	"google.golang.org/genai"
)

// Generate_Image renders one Imagen image. Inline bytes come back as a data URL.
func (g *Gemini_Model) Generate_Image(ctx context.Context, request models.Media_Request) (models.Media_Result, error) {
	if perr := g.precheck(request.Prompt); perr != nil {
		return models.Media_Result{}, perr
	}
	client, perr := g.client(ctx)
	if perr != nil {
		return models.Media_Result{}, perr
	}

	style := models.Parse_Image_Style(request.Style)
	resp, err := client.Models.GenerateImages(ctx, g.model(g.ImageModel, DefaultImageModel), models.Decorate_Image_Prompt(request.Prompt, string(style)), &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return models.Media_Result{}, classify(ctx, err)
	}

	url, perr := imageURL(resp)
	if perr != nil {
		return models.Media_Result{}, perr
	}
	return models.Media_Result{ImageURL: url, Model: "Imagen 4"}, nil
}

func imageURL(resp *genai.GenerateImagesResponse) (string, *models.Provider_Error) {
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0] == nil {
		return "", models.New_Error(provider, models.Malformed_Response, "Imagen returned no images.")
	}
	img := resp.GeneratedImages[0]
	if img.RAIFilteredReason != "" {
		return "", models.New_Error(provider, models.Content_Blocked, img.RAIFilteredReason)
	}
	if img.Image == nil {
		return "", models.New_Error(provider, models.Malformed_Response, "Imagen returned no image data.")
	}
	if img.Image.GCSURI != "" {
		return img.Image.GCSURI, nil
	}
	if len(img.Image.ImageBytes) > 0 {
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Image.ImageBytes)), nil
	}
	return "", models.New_Error(provider, models.Malformed_Response, "Imagen returned no image data.")
}

// Generate_Video starts a Veo operation and polls it until it completes.
func (g *Gemini_Model) Generate_Video(ctx context.Context, request models.Media_Request) (models.Media_Result, error) {
	if perr := g.precheck(request.Prompt); perr != nil {
		return models.Media_Result{}, perr
	}
	client, perr := g.client(ctx)
	if perr != nil {
		return models.Media_Result{}, perr
	}

	op, err := client.Models.GenerateVideos(ctx, g.model(g.VideoModel, DefaultVideoModel), request.Prompt, nil, nil)
	if err != nil {
		return models.Media_Result{}, classify(ctx, err)
	}

	op, err = poll_Operation(ctx, op, g.Poll_Interval, g.Max_Wait, func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
		return client.Operations.GetVideosOperation(ctx, op, nil)
	})
	if err != nil {
		return models.Media_Result{}, err
	}

	uri, perr := videoURI(op)
	if perr != nil {
		return models.Media_Result{}, perr
	}
	return models.Media_Result{VideoURL: uri, Model: "Veo 3"}, nil
}

type fetch_Func func(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)

// poll_Operation re-fetches op every interval until it is done. A positive
// maxWait caps the total wait.
func poll_Operation(ctx context.Context, op *genai.GenerateVideosOperation, interval, maxWait time.Duration, fetch fetch_Func) (*genai.GenerateVideosOperation, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var deadline <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		deadline = timer.C
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for op == nil || !op.Done {
		select {
		case <-ctx.Done():
			return nil, models.Wrap_Error(provider, models.Cancelled, ctx.Err())
		case <-deadline:
			return nil, models.New_Error(provider, models.Network_Failure, "video generation timed out")
		case <-ticker.C:
		}

		next, err := fetch(ctx, op)
		if err != nil {
			return nil, classify(ctx, err)
		}
		op = next
	}
	return op, nil
}

func videoURI(op *genai.GenerateVideosOperation) (string, *models.Provider_Error) {
	if op == nil {
		return "", models.New_Error(provider, models.Malformed_Response, "Veo returned no operation.")
	}
	if len(op.Error) > 0 {
		return "", models.New_Error(provider, models.Network_Failure, fmt.Sprintf("Veo operation failed: %v", op.Error["message"]))
	}
	resp := op.Response
	if resp == nil || len(resp.GeneratedVideos) == 0 || resp.GeneratedVideos[0] == nil || resp.GeneratedVideos[0].Video == nil {
		if resp != nil && resp.RAIMediaFilteredCount > 0 {
			return "", models.New_Error(provider, models.Content_Blocked, fmt.Sprintf("Veo filtered the video: %v", resp.RAIMediaFilteredReasons))
		}
		return "", models.New_Error(provider, models.Malformed_Response, "Veo returned no video.")
	}
	uri := resp.GeneratedVideos[0].Video.URI
	if uri == "" {
		return "", models.New_Error(provider, models.Malformed_Response, "Veo returned a video without a URI.")
	}
	return uri, nil
}
