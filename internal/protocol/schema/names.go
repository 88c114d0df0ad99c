package schema

import (
	"fmt"

	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// Registry maps numeric ids to symbolic names for diagnostics.
type Registry interface {
	OpcodeName(op uint8) string
	TagName(id uint16) string
}

// Table is a static Registry.
type Table struct {
	Opcodes map[uint8]string
	Tags    map[uint16]string
}

func (t Table) OpcodeName(op uint8) string {
	if name, ok := t.Opcodes[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02x)", op)
}

func (t Table) TagName(id uint16) string {
	if name, ok := t.Tags[id]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%04x)", id)
}

// TypeName names a tag value type.
func TypeName(typ tlv.Type) string {
	return typ.String()
}

// DefaultTable returns names for the opcodes and tags declared in this package.
func DefaultTable() Table {
	return Table{
		Opcodes: map[uint8]string{
			OpNoop:                 "EC_OP_NOOP",
			OpAuthReq:              "EC_OP_AUTH_REQ",
			OpAuthFail:             "EC_OP_AUTH_FAIL",
			OpAuthOK:               "EC_OP_AUTH_OK",
			OpFailed:               "EC_OP_FAILED",
			OpStrings:              "EC_OP_STRINGS",
			OpMiscData:             "EC_OP_MISC_DATA",
			OpShutdown:             "EC_OP_SHUTDOWN",
			OpAddLink:              "EC_OP_ADD_LINK",
			OpStatReq:              "EC_OP_STAT_REQ",
			OpGetConnState:         "EC_OP_GET_CONNSTATE",
			OpStats:                "EC_OP_STATS",
			OpGetDloadQueue:        "EC_OP_GET_DLOAD_QUEUE",
			OpGetUloadQueue:        "EC_OP_GET_ULOAD_QUEUE",
			OpGetSharedFiles:       "EC_OP_GET_SHARED_FILES",
			OpPartfilePause:        "EC_OP_PARTFILE_PAUSE",
			OpPartfileResume:       "EC_OP_PARTFILE_RESUME",
			OpPartfileStop:         "EC_OP_PARTFILE_STOP",
			OpPartfileDelete:       "EC_OP_PARTFILE_DELETE",
			OpPartfileSetCat:       "EC_OP_PARTFILE_SET_CAT",
			OpDloadQueue:           "EC_OP_DLOAD_QUEUE",
			OpUloadQueue:           "EC_OP_ULOAD_QUEUE",
			OpSharedFiles:          "EC_OP_SHARED_FILES",
			OpSearchStart:          "EC_OP_SEARCH_START",
			OpSearchStop:           "EC_OP_SEARCH_STOP",
			OpSearchResults:        "EC_OP_SEARCH_RESULTS",
			OpSearchProgress:       "EC_OP_SEARCH_PROGRESS",
			OpDownloadSearchResult: "EC_OP_DOWNLOAD_SEARCH_RESULT",
			OpGetServerList:        "EC_OP_GET_SERVER_LIST",
			OpServerList:           "EC_OP_SERVER_LIST",
			OpServerDisconnect:     "EC_OP_SERVER_DISCONNECT",
			OpServerConnect:        "EC_OP_SERVER_CONNECT",
			OpServerRemove:         "EC_OP_SERVER_REMOVE",
			OpGetLog:               "EC_OP_GET_LOG",
			OpGetDebugLog:          "EC_OP_GET_DEBUGLOG",
			OpGetServerInfo:        "EC_OP_GET_SERVERINFO",
			OpLog:                  "EC_OP_LOG",
			OpDebugLog:             "EC_OP_DEBUGLOG",
			OpServerInfo:           "EC_OP_SERVERINFO",
			OpGetPreferences:       "EC_OP_GET_PREFERENCES",
			OpSetPreferences:       "EC_OP_SET_PREFERENCES",
			OpCreateCategory:       "EC_OP_CREATE_CATEGORY",
			OpUpdateCategory:       "EC_OP_UPDATE_CATEGORY",
			OpDeleteCategory:       "EC_OP_DELETE_CATEGORY",
			OpGetStatsTree:         "EC_OP_GET_STATSTREE",
			OpStatsTree:            "EC_OP_STATSTREE",
			OpAuthSalt:             "EC_OP_AUTH_SALT",
			OpAuthPasswd:           "EC_OP_AUTH_PASSWD",
		},
		Tags: map[uint16]string{
			TagString:                "EC_TAG_STRING",
			TagPasswdHash:            "EC_TAG_PASSWD_HASH",
			TagProtocolVersion:       "EC_TAG_PROTOCOL_VERSION",
			TagVersionID:             "EC_TAG_VERSION_ID",
			TagDetailLevel:           "EC_TAG_DETAIL_LEVEL",
			TagConnState:             "EC_TAG_CONNSTATE",
			TagEd2kID:                "EC_TAG_ED2K_ID",
			TagClientID:              "EC_TAG_CLIENT_ID",
			TagPasswdSalt:            "EC_TAG_PASSWD_SALT",
			TagClientName:            "EC_TAG_CLIENT_NAME",
			TagClientVersion:         "EC_TAG_CLIENT_VERSION",
			TagClientMod:             "EC_TAG_CLIENT_MOD",
			TagStatsULSpeed:          "EC_TAG_STATS_UL_SPEED",
			TagStatsDLSpeed:          "EC_TAG_STATS_DL_SPEED",
			TagStatsULSpeedLimit:     "EC_TAG_STATS_UL_SPEED_LIMIT",
			TagStatsDLSpeedLimit:     "EC_TAG_STATS_DL_SPEED_LIMIT",
			TagStatsTotalSrc:         "EC_TAG_STATS_TOTAL_SRC_COUNT",
			TagStatsBannedCount:      "EC_TAG_STATS_BANNED_COUNT",
			TagStatsULQueueLen:       "EC_TAG_STATS_UL_QUEUE_LEN",
			TagStatsEd2kUsers:        "EC_TAG_STATS_ED2K_USERS",
			TagStatsKadUsers:         "EC_TAG_STATS_KAD_USERS",
			TagStatsEd2kFiles:        "EC_TAG_STATS_ED2K_FILES",
			TagStatsKadFiles:         "EC_TAG_STATS_KAD_FILES",
			TagPartfile:              "EC_TAG_PARTFILE",
			TagPartfileName:          "EC_TAG_PARTFILE_NAME",
			TagPartfileSizeFull:      "EC_TAG_PARTFILE_SIZE_FULL",
			TagPartfileSizeXfer:      "EC_TAG_PARTFILE_SIZE_XFER",
			TagPartfileSizeDone:      "EC_TAG_PARTFILE_SIZE_DONE",
			TagPartfileSpeed:         "EC_TAG_PARTFILE_SPEED",
			TagPartfileStatus:        "EC_TAG_PARTFILE_STATUS",
			TagPartfilePrio:          "EC_TAG_PARTFILE_PRIO",
			TagPartfileSourceCount:   "EC_TAG_PARTFILE_SOURCE_COUNT",
			TagPartfileEd2kLink:      "EC_TAG_PARTFILE_ED2K_LINK",
			TagPartfileCat:           "EC_TAG_PARTFILE_CAT",
			TagPartfileLastSeenComp:  "EC_TAG_PARTFILE_LAST_SEEN_COMP",
			TagPartfileHash:          "EC_TAG_PARTFILE_HASH",
			TagKnownfile:             "EC_TAG_KNOWNFILE",
			TagKnownfileXferred:      "EC_TAG_KNOWNFILE_XFERRED",
			TagKnownfileXferredAll:   "EC_TAG_KNOWNFILE_XFERRED_ALL",
			TagKnownfileReqCount:     "EC_TAG_KNOWNFILE_REQ_COUNT",
			TagKnownfileReqCountAll:  "EC_TAG_KNOWNFILE_REQ_COUNT_ALL",
			TagKnownfileAcceptCount:  "EC_TAG_KNOWNFILE_ACCEPT_COUNT",
			TagKnownfileAcceptCntAll: "EC_TAG_KNOWNFILE_ACCEPT_COUNT_ALL",
			TagKnownfilePrio:         "EC_TAG_KNOWNFILE_PRIO",
			TagServer:                "EC_TAG_SERVER",
			TagSearchfile:            "EC_TAG_SEARCHFILE",
			TagSearchType:            "EC_TAG_SEARCH_TYPE",
			TagSearchName:            "EC_TAG_SEARCH_NAME",
			TagSearchMinSize:         "EC_TAG_SEARCH_MIN_SIZE",
			TagSearchMaxSize:         "EC_TAG_SEARCH_MAX_SIZE",
			TagSearchFileType:        "EC_TAG_SEARCH_FILE_TYPE",
			TagSearchExtension:       "EC_TAG_SEARCH_EXTENSION",
			TagSearchStatus:          "EC_TAG_SEARCH_STATUS",
			TagSelectPrefs:           "EC_TAG_SELECT_PREFS",
			TagPrefsCategories:       "EC_TAG_PREFS_CATEGORIES",
			TagCategory:              "EC_TAG_CATEGORY",
			TagCategoryTitle:         "EC_TAG_CATEGORY_TITLE",
			TagCategoryPath:          "EC_TAG_CATEGORY_PATH",
			TagCategoryComment:       "EC_TAG_CATEGORY_COMMENT",
			TagCategoryColor:         "EC_TAG_CATEGORY_COLOR",
			TagCategoryPrio:          "EC_TAG_CATEGORY_PRIO",
		},
	}
}
