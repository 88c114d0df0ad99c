package schema

import (
	"fmt"

	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// ProtocolVersion is the EC protocol version this client speaks.
const ProtocolVersion uint16 = 0x0204

// Opcodes from the EC contract.
const (
	OpNoop                 uint8 = 0x01
	OpAuthReq              uint8 = 0x02
	OpAuthFail             uint8 = 0x03
	OpAuthOK               uint8 = 0x04
	OpFailed               uint8 = 0x05
	OpStrings              uint8 = 0x06
	OpMiscData             uint8 = 0x07
	OpShutdown             uint8 = 0x08
	OpAddLink              uint8 = 0x09
	OpStatReq              uint8 = 0x0A
	OpGetConnState         uint8 = 0x0B
	OpStats                uint8 = 0x0C
	OpGetDloadQueue        uint8 = 0x0D
	OpGetUloadQueue        uint8 = 0x0E
	OpGetSharedFiles       uint8 = 0x10
	OpPartfilePause        uint8 = 0x19
	OpPartfileResume       uint8 = 0x1A
	OpPartfileStop         uint8 = 0x1B
	OpPartfileDelete       uint8 = 0x1D
	OpPartfileSetCat       uint8 = 0x1E
	OpDloadQueue           uint8 = 0x1F
	OpUloadQueue           uint8 = 0x20
	OpSharedFiles          uint8 = 0x22
	OpSearchStart          uint8 = 0x26
	OpSearchStop           uint8 = 0x27
	OpSearchResults        uint8 = 0x28
	OpSearchProgress       uint8 = 0x29
	OpDownloadSearchResult uint8 = 0x2A
	OpGetServerList        uint8 = 0x2C
	OpServerList           uint8 = 0x2D
	OpServerDisconnect     uint8 = 0x2E
	OpServerConnect        uint8 = 0x2F
	OpServerRemove         uint8 = 0x30
	OpGetLog               uint8 = 0x35
	OpGetDebugLog          uint8 = 0x36
	OpGetServerInfo        uint8 = 0x37
	OpLog                  uint8 = 0x38
	OpDebugLog             uint8 = 0x39
	OpServerInfo           uint8 = 0x3A
	OpGetPreferences       uint8 = 0x3F
	OpSetPreferences       uint8 = 0x40
	OpCreateCategory       uint8 = 0x41
	OpUpdateCategory       uint8 = 0x42
	OpDeleteCategory       uint8 = 0x43
	OpGetStatsTree         uint8 = 0x46
	OpStatsTree            uint8 = 0x47
	OpAuthSalt             uint8 = 0x4F
	OpAuthPasswd           uint8 = 0x50
)

// Tag IDs from the EC contract.
const (
	TagString          uint16 = 0x0000
	TagPasswdHash      uint16 = 0x0001
	TagProtocolVersion uint16 = 0x0002
	TagVersionID       uint16 = 0x0003
	TagDetailLevel     uint16 = 0x0004
	TagConnState       uint16 = 0x0005
	TagEd2kID          uint16 = 0x0006
	TagClientID        uint16 = 0x000A
	TagPasswdSalt      uint16 = 0x000B

	TagClientName    uint16 = 0x0100
	TagClientVersion uint16 = 0x0101
	TagClientMod     uint16 = 0x0102

	TagStatsULSpeed      uint16 = 0x0200
	TagStatsDLSpeed      uint16 = 0x0201
	TagStatsULSpeedLimit uint16 = 0x0202
	TagStatsDLSpeedLimit uint16 = 0x0203
	TagStatsTotalSrc     uint16 = 0x0206
	TagStatsBannedCount  uint16 = 0x0207
	TagStatsULQueueLen   uint16 = 0x0208
	TagStatsEd2kUsers    uint16 = 0x0209
	TagStatsKadUsers     uint16 = 0x020A
	TagStatsEd2kFiles    uint16 = 0x020B
	TagStatsKadFiles     uint16 = 0x020C

	TagPartfile             uint16 = 0x0300
	TagPartfileName         uint16 = 0x0301
	TagPartfileSizeFull     uint16 = 0x0303
	TagPartfileSizeXfer     uint16 = 0x0304
	TagPartfileSizeDone     uint16 = 0x0306
	TagPartfileSpeed        uint16 = 0x0307
	TagPartfileStatus       uint16 = 0x0308
	TagPartfilePrio         uint16 = 0x0309
	TagPartfileSourceCount  uint16 = 0x030A
	TagPartfileEd2kLink     uint16 = 0x030E
	TagPartfileCat          uint16 = 0x030F
	TagPartfileLastSeenComp uint16 = 0x0311
	TagPartfileHash         uint16 = 0x031A

	TagKnownfile             uint16 = 0x0400
	TagKnownfileXferred      uint16 = 0x0401
	TagKnownfileXferredAll   uint16 = 0x0402
	TagKnownfileReqCount     uint16 = 0x0403
	TagKnownfileReqCountAll  uint16 = 0x0404
	TagKnownfileAcceptCount  uint16 = 0x0405
	TagKnownfileAcceptCntAll uint16 = 0x0406
	TagKnownfilePrio         uint16 = 0x040C

	TagServer uint16 = 0x0500

	TagSearchfile      uint16 = 0x0700
	TagSearchType      uint16 = 0x0701
	TagSearchName      uint16 = 0x0702
	TagSearchMinSize   uint16 = 0x0703
	TagSearchMaxSize   uint16 = 0x0704
	TagSearchFileType  uint16 = 0x0705
	TagSearchExtension uint16 = 0x0706
	TagSearchStatus    uint16 = 0x0708

	TagSelectPrefs     uint16 = 0x1000
	TagPrefsCategories uint16 = 0x1100
	TagCategory        uint16 = 0x1101
	TagCategoryTitle   uint16 = 0x1102
	TagCategoryPath    uint16 = 0x1103
	TagCategoryComment uint16 = 0x1104
	TagCategoryColor   uint16 = 0x1105
	TagCategoryPrio    uint16 = 0x1106
)

// PrefsCategories selects the category block in OpGetPreferences.
const PrefsCategories uint32 = 0x00000001

// Search network selectors carried by TagSearchType.
const (
	SearchLocal  uint8 = 0x00
	SearchGlobal uint8 = 0x01
	SearchKad    uint8 = 0x02
)

// Requirement is one tag a response must carry, with its accepted types.
type Requirement struct {
	ID    uint16
	Types []tlv.Type
}

type ValidationError struct {
	Opcode uint8
	TagID  uint16
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("schema: opcode=0x%02x tag=0x%04x: %s", e.Opcode, e.TagID, e.Reason)
}

var integerTypes = []tlv.Type{tlv.TypeUint8, tlv.TypeUint16, tlv.TypeUint32, tlv.TypeUint64}

var requirements = map[uint8][]Requirement{
	OpAuthSalt: {
		{TagPasswdSalt, append(append([]tlv.Type{}, integerTypes...), tlv.TypeHash16, tlv.TypeCustom)},
	},
	OpSearchProgress: {
		{TagSearchStatus, integerTypes},
	},
}

// Validate enforces required top-level tags for a response opcode.
// Opcodes without requirements and unknown tags are accepted.
func Validate(opcode uint8, tags []tlv.Tag) error {
	for _, req := range requirements[opcode] {
		tag, found := tlv.Find(tags, req.ID)
		if !found {
			return ValidationError{Opcode: opcode, TagID: req.ID, Reason: "missing required tag"}
		}
		if !typeAllowed(tag.Type, req.Types) {
			return ValidationError{Opcode: opcode, TagID: req.ID, Reason: fmt.Sprintf("unexpected type %s", tag.Type)}
		}
	}
	return nil
}

func typeAllowed(t tlv.Type, allowed []tlv.Type) bool {
	for _, a := range allowed {
		if a == t {
			return true
		}
	}
	return false
}
