package kubectl

import "errors"

var ErrHeredocMarker = errors.New("document contains the heredoc marker")
