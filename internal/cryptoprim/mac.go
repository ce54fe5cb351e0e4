package cryptoprim

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/ripemd160"

	"github.com/dun/munge/internal/munge"
)

var macTable = map[munge.MacType]struct {
	size int
	new  func() hash.Hash
}{
	munge.MacMD5:       {size: md5.Size, new: md5.New},
	munge.MacSHA1:      {size: sha1.Size, new: sha1.New},
	munge.MacRIPEMD160: {size: ripemd160.Size, new: ripemd160.New},
	munge.MacSHA256:    {size: sha256.Size, new: sha256.New},
	munge.MacSHA512:    {size: sha512.Size, new: sha512.New},
}

// MacEnabled reports whether t names a MAC backend compiled into this
// build. MacNone is never enabled: spec §4.6 step 1 rejects it outright.
func MacEnabled(t munge.MacType) bool {
	_, ok := macTable[t]
	return ok
}

// MacSize returns the full tag length in bytes produced by t.
func MacSize(t munge.MacType) int {
	return macTable[t].size
}

// HMAC computes HMAC(key; data) under mac type t, returning the full tag.
func HMAC(t munge.MacType, key, data []byte) ([]byte, error) {
	spec, ok := macTable[t]
	if !ok {
		return nil, munge.NewError(munge.BadMac, "mac not enabled in this build")
	}
	mac := hmac.New(spec.new, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}
