package frontpage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/image/draw"
)

const (
	maxBannerWidth = 1200
	jpegQuality    = 82
	maxUploadSize  = 10 << 20 // 10MB
	bannersSubdir  = "uploads/banners"
)

// processBanner decodes an image from src, scales it down to maxBannerWidth
// when wider, and encodes it as JPEG.
func processBanner(src io.Reader, originalName string) (Banner, []byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return Banner{}, nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxBannerWidth {
		newH := h * maxBannerWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxBannerWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
		w = maxBannerWidth
		h = newH
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Banner{}, nil, fmt.Errorf("encode jpeg: %w", err)
	}

	name := slugifyFilename(originalName)
	if name == "" {
		name = "banner"
	}

	return Banner{
		Filename:     name + ".jpg",
		OriginalName: originalName,
		Width:        w,
		Height:       h,
		Size:         buf.Len(),
	}, buf.Bytes(), nil
}

// slugifyFilename converts a filename (without extension) to a URL-safe slug.
func slugifyFilename(name string) string {
	ext := filepath.Ext(name)
	return Slugify(strings.TrimSuffix(name, ext))
}

// uniqueFilename appends a counter while filename already exists in dir.
func uniqueFilename(dir, filename string) string {
	base := strings.TrimSuffix(filename, ".jpg")
	candidate := filename
	for counter := 2; ; counter++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d.jpg", base, counter)
	}
}

func (a *App) handleBannerUpload(c echo.Context) error {
	if !IsAdmin(c) {
		return apiError(c, http.StatusUnauthorized, "Authentication required")
	}
	if !a.writeLimiter.Allow(c.RealIP()) {
		return apiError(c, http.StatusTooManyRequests, "Too many requests. Try again later.")
	}

	file, err := c.FormFile("image")
	if err != nil {
		return apiError(c, http.StatusBadRequest, "No image file provided")
	}
	if file.Size > maxUploadSize {
		return apiError(c, http.StatusBadRequest, "File too large (max 10MB)")
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	banner, data, err := processBanner(src, file.Filename)
	if err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid image: "+err.Error())
	}

	dir := filepath.Join(a.staticDir, filepath.FromSlash(bannersSubdir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create banners dir: %w", err)
	}
	banner.Filename = uniqueFilename(dir, banner.Filename)
	if err := os.WriteFile(filepath.Join(dir, banner.Filename), data, 0o644); err != nil {
		return fmt.Errorf("write banner: %w", err)
	}
	banner.URL = path.Join("/public", bannersSubdir, banner.Filename)

	c.Logger().Infof("frontpage: stored banner %s (%dx%d)", banner.Filename, banner.Width, banner.Height)
	return c.JSON(http.StatusCreated, apiResponse{Success: true, Message: "Banner uploaded", Data: banner})
}
