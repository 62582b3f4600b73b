package cascstore

import "fmt"

// Cache key builders for the fixed string vocabulary of spec.md §6
// "Cache key naming", kept in one place so the key shapes agree. Client.Query
// builds its keys with apiKey; the other builders have no caller in this
// module.

func ribbitKey(region, product, endpoint string) string {
	if product == "" {
		return fmt.Sprintf("ribbit:%s:%s", region, endpoint)
	}
	return fmt.Sprintf("ribbit:%s:%s:%s", region, product, endpoint)
}

func apiKey(transport, endpoint string) string {
	return fmt.Sprintf("api/%s/%s", transport, endpoint)
}

func configKey(kind, hexKey string) string {
	return fmt.Sprintf("config:%s:%s", kind, hexKey)
}

func blteKey(ekeyHex string, blockIndex int) string {
	if blockIndex < 0 {
		return fmt.Sprintf("blte:%s", ekeyHex)
	}
	return fmt.Sprintf("blte:%s:%d", ekeyHex, blockIndex)
}

func contentKey(ckeyHex string) string {
	return fmt.Sprintf("content:%s", ckeyHex)
}

func manifestKey(kind, ckeyHex, version string) string {
	if version == "" {
		return fmt.Sprintf("manifest:%s:%s", kind, ckeyHex)
	}
	return fmt.Sprintf("manifest:%s:%s:%s", kind, ckeyHex, version)
}

func encodingKey(form, ekeyHex string, page int) string {
	if page < 0 {
		return fmt.Sprintf("encoding:%s:%s", form, ekeyHex)
	}
	return fmt.Sprintf("encoding:%s:%s:p%d", form, ekeyHex, page)
}

func rootManifestKey(form, ckeyHex, version string) string {
	if version == "" {
		return fmt.Sprintf("root:%s:%s", form, ckeyHex)
	}
	return fmt.Sprintf("root:%s:%s:v%s", form, ckeyHex, version)
}

func archiveKey(id uint16, offset, length int64) string {
	return fmt.Sprintf("archive:%d:%d+%d", id, offset, length)
}
