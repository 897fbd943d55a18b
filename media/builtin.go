package media

import "fmt"

// Builtin returns the registration for one of the shipped media types.
// Image and video confirm extension matches with their sniffer; audio
// answers the extension-only lookup.
func Builtin(mediaType, ffprobe string) (Registration, error) {
	switch mediaType {
	case "image":
		return Registration{Manager: ImageManager{}, Protocol: TypeMatch}, nil
	case "audio":
		return Registration{Manager: AudioManager{FFprobe: ffprobe}, Protocol: ExtensionOnly}, nil
	case "video":
		return Registration{Manager: VideoManager{FFprobe: ffprobe}, Protocol: TypeMatch}, nil
	}

	return Registration{}, fmt.Errorf("%w: %q", ErrUnknownMediaType, mediaType)
}

// NewBuiltinRegistry registers the named shipped types in the given order.
func NewBuiltinRegistry(types []string, ffprobe string) (*Registry, error) {
	regs := make([]Registration, 0, len(types))
	for _, t := range types {
		reg, err := Builtin(t, ffprobe)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}

	return NewRegistry(regs...)
}
