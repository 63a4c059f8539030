package loader

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/lucos-os/lucos/go/models"
)

const (
	imageMagic   = "LCOF"
	imageVersion = 1
	flagReadOnly = 1
)

type imageHeader struct {
	Magic    [4]byte
	Version  uint16
	Kind     uint8
	EntryLen uint16 `struc:"sizeof=Entry"`
	Entry    string
	SecCount uint16 `struc:"sizeof=Sections"`
	Sections []sectionHeader
}

type sectionHeader struct {
	NameLen  uint8 `struc:"sizeof=Name"`
	Name     string
	FirstVPN uint32
	Pages    uint32
	Flags    uint8
	DataLen  uint32 `struc:"sizeof=Data"`
	Data     []byte
}

// Encode serializes an image. Path and Main are not stored.
func Encode(img *models.Image) ([]byte, error) {
	hdr := imageHeader{
		Version: imageVersion,
		Kind:    uint8(img.Kind),
		Entry:   img.Entry,
	}
	copy(hdr.Magic[:], imageMagic)
	for _, s := range img.Sections {
		sec := sectionHeader{
			Name:     s.Name,
			FirstVPN: uint32(s.FirstVPN),
			Pages:    uint32(s.Pages),
			Data:     s.Data,
		}
		if s.ReadOnly {
			sec.Flags |= flagReadOnly
		}
		hdr.Sections = append(hdr.Sections, sec)
	}
	var buf bytes.Buffer
	s := &models.StrucStream{Stream: &buf, Order: binary.LittleEndian}
	if err := s.Pack(&hdr); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return buf.Bytes(), nil
}

// Decode parses an image and checks its layout: sections must cover the
// pages from 0 up without gaps, in order.
func Decode(data []byte) (*models.Image, error) {
	var hdr imageHeader
	s := &models.StrucStream{Stream: readWriter{bytes.NewReader(data)}, Order: binary.LittleEndian}
	if err := s.Unpack(&hdr); err != nil {
		return nil, errors.Wrap(models.ErrBadImage, err.Error())
	}
	if string(hdr.Magic[:]) != imageMagic {
		return nil, errors.Wrapf(models.ErrBadImage, "bad magic %q", hdr.Magic[:])
	}
	if hdr.Version != imageVersion {
		return nil, errors.Wrapf(models.ErrBadImage, "unsupported version %d", hdr.Version)
	}
	img := &models.Image{Kind: models.ImageKind(hdr.Kind), Entry: hdr.Entry}
	vpn := 0
	for _, sec := range hdr.Sections {
		if int(sec.FirstVPN) != vpn {
			return nil, errors.Wrapf(models.ErrBadImage, "fragmented executable: section %s at page %d, expected %d", sec.Name, sec.FirstVPN, vpn)
		}
		if sec.Pages == 0 {
			return nil, errors.Wrapf(models.ErrBadImage, "empty section %s", sec.Name)
		}
		vpn += int(sec.Pages)
		img.Sections = append(img.Sections, models.Section{
			Name:     sec.Name,
			FirstVPN: int(sec.FirstVPN),
			Pages:    int(sec.Pages),
			ReadOnly: sec.Flags&flagReadOnly != 0,
			Data:     sec.Data,
		})
	}
	return img, nil
}

// readWriter lets a bytes.Reader stand in for a StrucStream's ReadWriter.
type readWriter struct{ *bytes.Reader }

func (readWriter) Write(p []byte) (int, error) {
	return 0, errors.New("read-only stream")
}
