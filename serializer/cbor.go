package serializer

import (
	"encoding/base64"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"rebind/errors"
	"rebind/memento"
)

// 确定性编码：相同内容总是产生相同字节，摘要因此稳定
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// ObjectType 字段未导出，按 MarshalText 编为文本
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("serializer: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("serializer: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBORSerializer CBOR 序列化器，输出为 base64 文本
type CBORSerializer struct{}

// NewCBORSerializer 创建 CBOR 序列化器
func NewCBORSerializer() *CBORSerializer {
	return &CBORSerializer{}
}

func (s *CBORSerializer) Format() string { return FormatCBOR }

func (s *CBORSerializer) Serialize(m memento.Memento) (string, error) {
	b, err := toBasic(m)
	if err != nil {
		return "", err
	}
	data, err := cborEnc.Marshal(b)
	if err != nil {
		return "", errors.WrapError(err, errors.ErrCodeSerialization, "cbor marshal "+b.Type.String()+" "+b.ID)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *CBORSerializer) Deserialize(t memento.ObjectType, payload string, lookup memento.LookupContext) (memento.Memento, error) {
	data, err := s.decode(t, payload)
	if err != nil {
		return nil, err
	}
	var m memento.BasicMemento
	if err := cborDec.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeSerialization, "cbor unmarshal "+t.String())
	}
	return finishDecode(t, &m, lookup)
}

func (s *CBORSerializer) Peek(t memento.ObjectType, payload string) (memento.ManifestEntry, error) {
	data, err := s.decode(t, payload)
	if err != nil {
		return memento.ManifestEntry{}, err
	}
	var h peekHeader
	if err := cborDec.Unmarshal(data, &h); err != nil {
		return memento.ManifestEntry{}, errors.WrapError(err, errors.ErrCodeSerialization, "cbor peek "+t.String())
	}
	return h.entry(t), nil
}

func (s *CBORSerializer) decode(t memento.ObjectType, payload string) ([]byte, error) {
	if payload == "" {
		return nil, ErrInvalidMemento
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeSerialization, "decode base64 "+t.String())
	}
	return data, nil
}

var (
	_ Serializer     = (*CBORSerializer)(nil)
	_ memento.Peeker = (*CBORSerializer)(nil)
)
