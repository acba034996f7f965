package device

import (
	"net/http"

	"github.com/programme-lv/proctor/srvcerror"
)

const ErrCodeDeviceConflict = "device_conflict"

func ErrDeviceConflict() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeDeviceConflict,
		"this attempt is already locked to another device",
	).SetHttpStatusCode(http.StatusConflict)
}

const ErrCodeDeviceNotFound = "device_not_found"

func ErrDeviceNotFound() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeDeviceNotFound,
		"device is not registered",
	).SetHttpStatusCode(http.StatusNotFound)
}

const ErrCodeFingerprintMissing = "fingerprint_missing"

func ErrFingerprintMissing() *srvcerror.Error {
	return srvcerror.New(
		ErrCodeFingerprintMissing,
		"a device fingerprint is required",
	).SetHttpStatusCode(http.StatusBadRequest)
}
