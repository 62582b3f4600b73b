package archive

import "crypto/md5"

func md5Sum(b []byte) [16]byte {
	return md5.Sum(b)
}
