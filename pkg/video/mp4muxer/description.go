package mp4muxer

import (
	"fmt"

	"flashrec/pkg/video/h264"
	"flashrec/pkg/video/mp4"
)

// SampleDescription is the codec specific sample entry of the track.
type SampleDescription struct {
	entryType  mp4.BoxType
	compressor string
	children   []mp4.Boxes
}

// EntryType returns the sample entry type, e.g. avc1.
func (d *SampleDescription) EntryType() mp4.BoxType {
	return d.entryType
}

// H264Description returns an avc1 sample entry.
func H264Description(sps []byte, pps []byte) (*SampleDescription, error) {
	var spsp h264.SPS
	if err := spsp.Unmarshal(sps); err != nil {
		return nil, fmt.Errorf("unmarshal sps: %w", err)
	}

	avcC := &mp4.AvcC{
		ConfigurationVersion: 1,
		Profile:              spsp.ProfileIdc,
		ProfileCompatibility: spsp.ProfileCompatibility,
		Level:                spsp.LevelIdc,
		LengthSizeMinusOne:   3,
		SequenceParameterSets: []mp4.AVCParameterSet{
			{NALUnit: sps},
		},
		PictureParameterSets: []mp4.AVCParameterSet{
			{NALUnit: pps},
		},
	}
	if mp4.IsHighProfile(spsp.ProfileIdc) {
		avcC.HighProfileFieldsEnabled = true
		avcC.ChromaFormat = uint8(spsp.ChromaFormatIdc)
		avcC.BitDepthLumaMinus8 = uint8(spsp.BitDepthLumaMinus8)
		avcC.BitDepthChromaMinus8 = uint8(spsp.BitDepthChromaMinus8)
	}

	return &SampleDescription{
		entryType:  mp4.StrToBoxType("avc1"),
		compressor: "AVC Coding",
		children:   []mp4.Boxes{{Box: avcC}},
	}, nil
}

// MPEG4Description returns a mp4v sample entry. config is the
// DecoderSpecificInfo, the headers before the first VOP.
func MPEG4Description(config []byte) *SampleDescription {
	return &SampleDescription{
		entryType:  mp4.StrToBoxType("mp4v"),
		compressor: "MPEG-4 Video",
		children: []mp4.Boxes{{Box: &mp4.Esds{
			ESID:                 videoTrackID,
			ObjectTypeIndication: mp4.ObjectTypeVisualISO14496part2,
			StreamType:           0x04, // VisualStream.
			Config:               config,
		}}},
	}
}

// JPEGDescription returns a jpeg sample entry.
func JPEGDescription() *SampleDescription {
	return &SampleDescription{
		entryType:  mp4.StrToBoxType("jpeg"),
		compressor: "Photo - JPEG",
	}
}

func (d *SampleDescription) stsd(width uint16, height uint16) mp4.Boxes {
	/*
	   - stsd
	     - avc1 | mp4v | jpeg
	       - avcC | esds
	*/

	return mp4.Boxes{
		Box: &mp4.Stsd{EntryCount: 1},
		Children: []mp4.Boxes{
			{
				Box: &mp4.VisualSampleEntry{
					SampleEntry: mp4.SampleEntry{
						DataReferenceIndex: 1,
					},
					SampleEntryType: d.entryType,
					Width:           width,
					Height:          height,
					Horizresolution: 4718592,
					Vertresolution:  4718592,
					FrameCount:      1,
					Compressorname:  mp4.CompressorName(d.compressor),
					Depth:           24,
					PreDefined3:     -1,
				},
				Children: d.children,
			},
		},
	}
}
