package common

import (
	"crypto/md5"
	"fmt"

	"github.com/google/uuid"
)

// UUID returns a random uuid string.
func UUID() string {
	return uuid.NewString()
}

func Md5Hash(src string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(src)))
}

func InSlice(v string, sl []string) bool {
	for _, vv := range sl {
		if vv == v {
			return true
		}
	}
	return false
}
