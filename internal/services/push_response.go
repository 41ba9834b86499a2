package services

// Response is the result of one push attempt. It is successful when Err is nil.
type Response struct {
	err *DeliveryError
}

func newResponse(err *DeliveryError) *Response {
	return &Response{err: err}
}

func (r *Response) Err() *DeliveryError { return r.err }

func (r *Response) Success() bool { return r.err == nil }
