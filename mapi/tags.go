package mapi

// Well-known property identifiers (MS-OXPROPS).
const (
	TagMessageClass      = 0x001A // PR_MESSAGE_CLASS
	TagSubject           = 0x0037 // PR_SUBJECT
	TagClientSubmitTime  = 0x0039 // PR_CLIENT_SUBMIT_TIME
	TagSentRepresenting  = 0x0042 // PR_SENT_REPRESENTING_NAME
	TagConversationTopic = 0x0070 // PR_CONVERSATION_TOPIC
	TagTransportHeaders  = 0x007D // PR_TRANSPORT_MESSAGE_HEADERS
	TagRecipientType     = 0x0C15 // PR_RECIPIENT_TYPE
	TagSenderName        = 0x0C1A // PR_SENDER_NAME
	TagSenderEmail       = 0x0C1F // PR_SENDER_EMAIL_ADDRESS
	TagDisplayBcc        = 0x0E02 // PR_DISPLAY_BCC
	TagDisplayCc         = 0x0E03 // PR_DISPLAY_CC
	TagDisplayTo         = 0x0E04 // PR_DISPLAY_TO
	TagDeliveryTime      = 0x0E06 // PR_MESSAGE_DELIVERY_TIME
	TagAttachSize        = 0x0E20 // PR_ATTACH_SIZE
	TagBody              = 0x1000 // PR_BODY
	TagRtfCompressed     = 0x1009 // PR_RTF_COMPRESSED
	TagBodyHTML          = 0x1013 // PR_HTML
	TagInternetMessageID = 0x1035 // PR_INTERNET_MESSAGE_ID
	TagRowID             = 0x3000 // PR_ROWID
	TagDisplayName       = 0x3001 // PR_DISPLAY_NAME
	TagAddressType       = 0x3002 // PR_ADDRTYPE
	TagEmailAddress      = 0x3003 // PR_EMAIL_ADDRESS
	TagAttachDataObj     = 0x3701 // PR_ATTACH_DATA_BIN / PR_ATTACH_DATA_OBJ
	TagAttachExtension   = 0x3703 // PR_ATTACH_EXTENSION
	TagAttachFilename    = 0x3704 // PR_ATTACH_FILENAME
	TagAttachMethod      = 0x3705 // PR_ATTACH_METHOD
	TagAttachLongFname   = 0x3707 // PR_ATTACH_LONG_FILENAME
	TagAttachMimeTag     = 0x370E // PR_ATTACH_MIME_TAG
	TagAttachContentID   = 0x3712 // PR_ATTACH_CONTENT_ID
	TagSMTPAddress       = 0x39FE // PR_SMTP_ADDRESS
	TagInternetCPID      = 0x3FDE // PR_INTERNET_CPID
	TagMessageCodePage   = 0x3FFD // PR_MESSAGE_CODEPAGE
	TagSenderSMTPAddress = 0x5D01 // PR_SENDER_SMTP_ADDRESS
)

// Named properties are mapped into this tag range.
const (
	FirstNamedTag = 0x8000
	LastNamedTag  = 0xFFFE
)

// IsNamedTag reports whether tag lies in the named property range.
func IsNamedTag(tag uint16) bool {
	return tag >= FirstNamedTag && tag <= LastNamedTag
}

// Attachment methods from PR_ATTACH_METHOD.
const (
	AttachByValue     = 1
	AttachByReference = 2
	AttachEmbeddedMsg = 5
	AttachOLE         = 6
)

// Recipient types from PR_RECIPIENT_TYPE.
const (
	RecipientTo  = 1
	RecipientCc  = 2
	RecipientBcc = 3
)
