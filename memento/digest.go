package memento

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest 32 字节 BLAKE3 摘要
type Digest [32]byte

// String 十六进制表示
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short 前 12 个十六进制字符，用于日志与清单展示
func (d Digest) Short() string {
	return d.String()[:12]
}

// IsZero 是否为零值
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// 域分隔密钥：相同字节在不同用途下产生不同摘要。改变这些值会使已有摘要全部失效。
var (
	payloadDomainKey = [32]byte{
		'r', 'e', 'b', 'i', 'n', 'd', '.', 'm', 'e', 'm', 'e', 'n', 't', 'o', '.',
		'p', 'a', 'y', 'l', 'o', 'a', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
	snapshotDomainKey = [32]byte{
		'r', 'e', 'b', 'i', 'n', 'd', '.', 'm', 'e', 'm', 'e', 'n', 't', 'o', '.',
		's', 'n', 'a', 'p', 's', 'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

func newKeyedHasher(key [32]byte) *blake3.Hasher {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// 密钥长度固定为 32 字节，不会失败
		panic("memento: blake3 keyed hasher: " + err.Error())
	}
	return h
}

// PayloadDigest 计算单个序列化内容的摘要
func PayloadDigest(payload string) Digest {
	h := newKeyedHasher(payloadDomainKey)
	_, _ = h.Write([]byte(payload))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Fingerprint 整个快照的摘要：按依赖顺序、id 排序对 (type, id, payload) 做长度前缀编码后哈希。
// 与格式标签和平面 id 无关，内容相同的两个快照指纹相同。
func (r *RawSnapshot) Fingerprint() Digest {
	h := newKeyedHasher(snapshotDomainKey)
	var lenBuf [8]byte
	writeField := func(s string) {
		binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(s))
	}
	_ = r.ForEach(func(t ObjectType, id, payload string) error {
		writeField(t.String())
		writeField(id)
		writeField(payload)
		return nil
	})
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
