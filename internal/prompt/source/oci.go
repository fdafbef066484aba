package source

import (
	"fmt"
	"io"
	"os"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/static"
	"github.com/google/go-containerregistry/pkg/v1/types"

	"github.com/ogulcanaydogan/caseprompt/internal/prompt"
)

const SeedMediaType = types.MediaType("application/vnd.caseprompt.seed.v1+yaml")

// PublishSeed validates the seed at inPath and pushes it as a single-layer
// OCI artifact. It returns the digest-pinned reference.
func PublishSeed(inPath string, ociRef string) (string, error) {
	raw, err := os.ReadFile(inPath)
	if err != nil {
		return "", fmt.Errorf("read seed: %w", err)
	}
	if _, err := prompt.ParseSeed(raw); err != nil {
		return "", fmt.Errorf("refuse to publish invalid seed: %w", err)
	}
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return "", fmt.Errorf("parse oci ref: %w", err)
	}

	layer := static.NewLayer(raw, SeedMediaType)
	img, err := mutate.AppendLayers(empty.Image, layer)
	if err != nil {
		return "", fmt.Errorf("append layer: %w", err)
	}
	img = mutate.MediaType(img, types.OCIManifestSchema1)

	if err := remote.Write(ref, img, remote.WithAuthFromKeychain(authn.DefaultKeychain)); err != nil {
		return "", fmt.Errorf("push seed artifact: %w", err)
	}
	digest, err := img.Digest()
	if err != nil {
		return "", fmt.Errorf("compute digest: %w", err)
	}
	return ref.Context().Digest(digest.String()).String(), nil
}

// PullSeed fetches the seed layer from ociRef and parses it.
func PullSeed(ociRef string) ([]prompt.Config, []byte, error) {
	ref, err := name.ParseReference(ociRef, name.WithDefaultRegistry("ghcr.io"))
	if err != nil {
		return nil, nil, fmt.Errorf("parse oci ref: %w", err)
	}
	img, err := remote.Image(ref, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return nil, nil, fmt.Errorf("pull seed artifact: %w", err)
	}
	layers, err := img.Layers()
	if err != nil {
		return nil, nil, fmt.Errorf("read layers: %w", err)
	}
	if len(layers) == 0 {
		return nil, nil, fmt.Errorf("seed artifact has no layers")
	}
	mt, err := layers[0].MediaType()
	if err != nil {
		return nil, nil, fmt.Errorf("read layer media type: %w", err)
	}
	if mt != SeedMediaType {
		return nil, nil, fmt.Errorf("unexpected layer media type %q", mt)
	}

	rc, err := layers[0].Uncompressed()
	if err != nil {
		return nil, nil, fmt.Errorf("read layer payload: %w", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("read layer bytes: %w", err)
	}
	cfgs, err := prompt.ParseSeed(raw)
	if err != nil {
		return nil, nil, err
	}
	return cfgs, raw, nil
}
