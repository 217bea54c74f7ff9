package accumulator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	xerrors "X402-Registry/internal/errors"
)

const (
	CodeLeafNotFound xerrors.Code = "ACCUMULATOR_LEAF_NOT_FOUND"
	CodeInvalidLeaf  xerrors.Code = "ACCUMULATOR_INVALID_LEAF"
)

var (
	// ErrLeafNotFound 表示目标叶子不在列表中。
	ErrLeafNotFound = xerrors.New(CodeLeafNotFound, "leaf not found in accumulator")
	// EmptyRoot 是空列表的根。
	EmptyRoot = strings.Repeat("0", sha256.Size*2)
)

func init() {
	xerrors.Register(CodeLeafNotFound, xerrors.Attributes{
		Message:  "leaf not found in accumulator",
		Kind:     xerrors.KindNotFound,
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeInvalidLeaf, xerrors.Attributes{
		Message:  "accumulator leaf is not valid hex",
		Kind:     xerrors.KindValidation,
		Severity: xerrors.SeverityWarning,
	})
}

// Proof 是某个叶子到根的包含路径，Siblings 自底向上排列。
type Proof struct {
	Leaf     string   `json:"leaf"`
	Index    int      `json:"index"`
	Siblings []string `json:"siblings"`
}

// ComputeRoot 计算叶子列表的 Merkle 根。
func ComputeRoot(leaves []string) (string, error) {
	if len(leaves) == 0 {
		return EmptyRoot, nil
	}
	level, err := decodeLeaves(leaves)
	if err != nil {
		return "", err
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return hex.EncodeToString(level[0]), nil
}

// BuildProof 生成 leaf 首次出现位置的包含路径。
func BuildProof(leaves []string, leaf string) (Proof, error) {
	index := -1
	for i, l := range leaves {
		if l == leaf {
			index = i
			break
		}
	}
	if index < 0 {
		return Proof{}, ErrLeafNotFound
	}
	level, err := decodeLeaves(leaves)
	if err != nil {
		return Proof{}, err
	}

	proof := Proof{Leaf: leaf, Index: index, Siblings: []string{}}
	pos := index
	for len(level) > 1 {
		sibling := pos ^ 1
		if sibling >= len(level) {
			sibling = pos
		}
		proof.Siblings = append(proof.Siblings, hex.EncodeToString(level[sibling]))
		level = nextLevel(level)
		pos /= 2
	}
	return proof, nil
}

// Root 沿包含路径折叠出根。
func (p Proof) Root() (string, error) {
	current, err := decodeHex(p.Leaf)
	if err != nil {
		return "", err
	}
	pos := p.Index
	for _, s := range p.Siblings {
		sibling, err := decodeHex(s)
		if err != nil {
			return "", err
		}
		if pos%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		pos /= 2
	}
	return hex.EncodeToString(current), nil
}

// Verify 判断包含路径是否折叠到给定的根。
func (p Proof) Verify(root string) bool {
	computed, err := p.Root()
	if err != nil {
		return false
	}
	return strings.EqualFold(computed, root)
}

func nextLevel(level [][]byte) [][]byte {
	next := make([][]byte, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		left := level[i]
		right := left
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(left, right))
	}
	return next
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func decodeLeaves(leaves []string) ([][]byte, error) {
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		raw, err := decodeHex(leaf)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

func decodeHex(value string) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, xerrors.Wrap(CodeInvalidLeaf, err, fmt.Sprintf("无法解析叶子 %q", value))
	}
	return raw, nil
}
