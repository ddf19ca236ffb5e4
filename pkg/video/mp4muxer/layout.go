package mp4muxer

import (
	"fmt"
	"io"

	"flashrec/pkg/video/mp4"
	"flashrec/pkg/video/mp4/bitio"
)

// Media files are laid out as
//
//   ftyp
//   mdat (64 bit size, zero until finalized)
//   moov (appended when finalized)
//
// so samples can be appended while recording.

// MdatHeaderSize is the size of the 64 bit mdat header.
const MdatHeaderSize = 16

func ftyp() *mp4.Ftyp {
	return &mp4.Ftyp{
		MajorBrand:   [4]byte{'i', 's', 'o', 'm'},
		MinorVersion: 512,
		CompatibleBrands: []mp4.CompatibleBrandElem{
			{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
			{CompatibleBrand: [4]byte{'i', 's', 'o', '2'}},
			{CompatibleBrand: [4]byte{'a', 'v', 'c', '1'}},
			{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
		},
	}
}

// DataOffset is the file offset of the first sample.
var DataOffset = int64(ftyp().Size() + 8 + MdatHeaderSize)

// WriteHeader writes ftyp and an open mdat header.
func WriteHeader(out io.Writer) error {
	buf := bitio.NewBuffer(int(DataOffset))
	w := bitio.NewWriter(buf)

	if _, err := mp4.WriteSingleBox(w, ftyp()); err != nil {
		return fmt.Errorf("write ftyp: %w", err)
	}

	w.TryWriteUint32(1)
	w.TryWriteFourCC(mp4.StrToBoxType("mdat"))
	w.TryWriteUint64(0)
	if w.TryError != nil {
		return fmt.Errorf("write mdat: %w", w.TryError)
	}

	if _, err := out.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

// PatchMdatSize writes the final mdat size into the mdat header.
// mdatOffset is the offset of the mdat header.
func PatchMdatSize(out io.WriterAt, mdatOffset int64, dataSize uint64) error {
	buf := bitio.NewBuffer(8)
	if err := bitio.NewWriter(buf).WriteUint64(MdatHeaderSize + dataSize); err != nil {
		return err
	}
	if _, err := out.WriteAt(buf.Bytes(), mdatOffset+8); err != nil {
		return fmt.Errorf("patch mdat size: %w", err)
	}
	return nil
}
