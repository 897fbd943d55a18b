package media

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "tiff", "tif", "bmp", "webp"}

type ImageManager struct{}

func (ImageManager) Type() string         { return "image" }
func (ImageManager) Name() string         { return "Image" }
func (ImageManager) Extensions() []string { return imageExtensions }
func (ImageManager) Sniffer() Sniffer     { return familySniffer("image/", imageExtensions) }

func (ImageManager) DefaultThumbnail() string { return "images/media_thumbs/image.png" }

func (ImageManager) Templates() Templates {
	return Templates{Display: "media_displays/image.html", Embed: "media_embeds/image.html"}
}

func (ImageManager) Requirements() []string { return nil }

// Process records the pixel dimensions of the queued image.
func (ImageManager) Process(ctx context.Context, job Job) (Metadata, error) {
	f, err := os.Open(job.Path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode image %q: %w", job.Filename, err)
	}

	return Metadata{Width: cfg.Width, Height: cfg.Height, MIMEType: "image/" + format}, nil
}
