package nfc

import (
	"github.com/inlock/fabric/pkg/types"
)

// BuildAssetData maps a scanned tag payload to the metadata stored on the
// asset's register event. Missing fields get the defaults existing mobile
// clients expect.
func BuildAssetData(req types.NFCTagRequest) map[string]any {
	tagType := req.TagType
	if tagType == "" {
		tagType = "NFC"
	}
	technologies := req.TagTechnologies
	if technologies == nil {
		technologies = []string{}
	}
	return map[string]any{
		"tag_type":          tagType,
		"tag_technologies":  technologies,
		"ndef_message":      req.NDEFMessage,
		"scanned_timestamp": req.Timestamp,
	}
}
