package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/rusenback/dockersmoke/internal/model"
)

// loadedPattern matches the lines the daemon prints for every image it loads.
var loadedPattern = regexp.MustCompile(`^Loaded image(?: ID)?: (.+)$`)

// ImageLoadError reports an archive that did not yield exactly one image.
type ImageLoadError struct {
	Count int
	Refs  []string
	Err   error
}

func (e *ImageLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image load failed: %v", e.Err)
	}
	return fmt.Sprintf("expected exactly one image to be loaded, got %d", e.Count)
}

func (e *ImageLoadError) Unwrap() error {
	return e.Err
}

// LoadImage sends an image archive to the daemon and returns the single
// image it contained.
func (c *Client) LoadImage(ctx context.Context, archive io.Reader) (model.Image, error) {
	resp, err := c.cli.ImageLoad(ctx, archive, false)
	if err != nil {
		return model.Image{}, &ImageLoadError{Err: err}
	}
	defer resp.Body.Close()

	refs, err := readLoadOutput(resp.Body, resp.JSON)
	if err != nil {
		return model.Image{}, &ImageLoadError{Err: err}
	}

	return resolveImage(ctx, refs, c.InspectImage)
}

// InspectImage resolves an image reference or ID to the image's ID and tags.
func (c *Client) InspectImage(ctx context.Context, ref string) (model.Image, error) {
	info, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		return model.Image{}, err
	}
	return model.Image{ID: info.ID, Tags: info.RepoTags}, nil
}

// readLoadOutput collects the references reported by a load response.
func readLoadOutput(r io.Reader, isJSON bool) ([]string, error) {
	if !isJSON {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return loadedRefs(string(data)), nil
	}

	var refs []string
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode load response: %w", err)
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		refs = append(refs, loadedRefs(msg.Stream)...)
	}
	return refs, nil
}

// loadedRefs extracts image references from "Loaded image" lines.
func loadedRefs(text string) []string {
	var refs []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := loadedPattern.FindStringSubmatch(line); m != nil {
			refs = append(refs, strings.TrimSpace(m[1]))
		}
	}
	return refs
}

// resolveImage maps every loaded reference to its image and requires that
// they all name the same image. Several tags of one image count once.
func resolveImage(ctx context.Context, refs []string, inspect func(context.Context, string) (model.Image, error)) (model.Image, error) {
	if len(refs) == 0 {
		return model.Image{}, &ImageLoadError{Count: 0}
	}

	var images []model.Image
	byID := make(map[string]int)
	for _, ref := range refs {
		img, err := inspect(ctx, ref)
		if err != nil {
			return model.Image{}, &ImageLoadError{Refs: refs, Err: fmt.Errorf("inspect %s: %w", ref, err)}
		}
		if i, ok := byID[img.ID]; ok {
			images[i].Tags = mergeTags(images[i].Tags, img.Tags)
			continue
		}
		byID[img.ID] = len(images)
		images = append(images, img)
	}

	if len(images) != 1 {
		return model.Image{}, &ImageLoadError{Count: len(images), Refs: refs}
	}
	return images[0], nil
}

func mergeTags(have, more []string) []string {
	seen := make(map[string]bool, len(have))
	for _, t := range have {
		seen[t] = true
	}
	for _, t := range more {
		if !seen[t] {
			have = append(have, t)
			seen[t] = true
		}
	}
	return have
}
